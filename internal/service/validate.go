package service

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validateAnswer checks one value against its field definition.
// Empty values only fail required fields.
func validateAnswer(f domain.FormField, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		if f.Required {
			return &domain.ErrValidation{Field: f.Label, Message: "campo obrigatório"}
		}
		return nil
	}
	switch f.Type {
	case domain.FieldCPFCNPJ:
		if n := len(digitsOnly(value)); n != 11 && n != 14 {
			return &domain.ErrValidation{Field: f.Label, Message: "CPF/CNPJ deve ter 11 ou 14 dígitos"}
		}
	case domain.FieldDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			if _, err := time.Parse("02/01/2006", value); err != nil {
				return &domain.ErrValidation{Field: f.Label, Message: "data inválida (use AAAA-MM-DD ou DD/MM/AAAA)"}
			}
		}
	case domain.FieldTel:
		if n := len(digitsOnly(value)); n < 10 || n > 13 {
			return &domain.ErrValidation{Field: f.Label, Message: "telefone deve ter de 10 a 13 dígitos"}
		}
	case domain.FieldText, domain.FieldFile:
	default:
		return &domain.ErrValidation{Field: f.Label, Message: fmt.Sprintf("tipo de campo desconhecido: %s", f.Type)}
	}
	return nil
}
