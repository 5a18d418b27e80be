// Package spreadsheet imports and exports list names as xlsx workbooks.
package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

const sheetName = "Nomes"

// Header is the first row of exported workbooks and of the import template.
var Header = []string{"Nome", "CPF"}

// MaxRows bounds an import.
const MaxRows = 50000

// Excel implements port.NamesSheet.
type Excel struct{}

var _ port.NamesSheet = Excel{}

// ReadNames parses the first sheet. A header row is detected and skipped;
// blank rows are ignored. Column A is the name, column B the document.
func (Excel) ReadNames(r io.Reader) ([]domain.NamesList, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "file", Message: fmt.Sprintf("planilha inválida: %v", err)}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &domain.ErrValidation{Field: "file", Message: "planilha sem abas"}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "file", Message: fmt.Sprintf("falha ao ler linhas: %v", err)}
	}

	names := make([]domain.NamesList, 0, len(rows))
	for i, row := range rows {
		nome, cpf := cell(row, 0), cell(row, 1)
		if i == 0 && isHeader(nome) {
			continue
		}
		if nome == "" && cpf == "" {
			continue
		}
		if nome == "" || cpf == "" {
			return nil, &domain.ErrValidation{
				Field:   "file",
				Message: fmt.Sprintf("linha %d: nome e CPF são obrigatórios", i+1),
			}
		}
		names = append(names, domain.NamesList{Nome: nome, CPF: cpf})
		if len(names) > MaxRows {
			return nil, &domain.ErrValidation{Field: "file", Message: fmt.Sprintf("máximo de %d nomes por planilha", MaxRows)}
		}
	}
	if len(names) == 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "planilha sem nomes"}
	}
	return names, nil
}

// WriteList renders a list's names into a single-sheet workbook.
func (Excel) WriteList(list *domain.List) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, h := range Header {
		if err := setCell(f, col+1, 1, h); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheetName, "A1", "B1", headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "A", 45); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "B", 20); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, n := range list.Names {
		row := i + 2
		if err := setCell(f, 1, row, n.Nome); err != nil {
			f.Close()
			return nil, err
		}
		if err := setCell(f, 2, row, n.CPF); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is the download name of an exported list.
func Filename(list *domain.List) string {
	return "lista_" + list.Protocol + ".xlsx"
}

func setCell(f *excelize.File, col, row int, value string) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	// Documents keep leading zeros: always written as text.
	if err := f.SetCellStr(sheetName, name, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", name, err)
	}
	return nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isHeader(v string) bool {
	v = strings.ToLower(v)
	return v == "nome" || v == "name"
}
