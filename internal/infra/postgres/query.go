package postgres

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) and(cond string) { w.conds = append(w.conds, cond) }

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// scope renders the role visibility predicate. It is the only place the
// admin/affiliate/customer rules are expressed in SQL.
func (w *where) scope(s domain.Scope, ownerCol, affiliateCol string) {
	switch s.Role {
	case domain.RoleAdmin:
		if s.ClientID != nil {
			w.and(ownerCol + " = " + w.arg(*s.ClientID))
		}
	case domain.RoleAffiliate:
		self := w.arg(s.UserID)
		switch s.View {
		case domain.ViewOwn:
			w.and(fmt.Sprintf("(%s = %s AND %s IS DISTINCT FROM %s)", ownerCol, self, affiliateCol, self))
		case domain.ViewReferred:
			w.and(fmt.Sprintf("%s = %s", affiliateCol, self))
		default:
			w.and(fmt.Sprintf("(%s = %s OR %s = %s)", ownerCol, self, affiliateCol, self))
		}
	case domain.RoleCustomer:
		w.and(ownerCol + " = " + w.arg(s.UserID))
	default:
		w.and("FALSE")
	}
}

func (w *where) createdBetween(col string, from, to *time.Time) {
	if from != nil {
		w.and(col + " >= " + w.arg(*from))
	}
	if to != nil {
		w.and(col + " < " + w.arg(*to))
	}
}

// page renders LIMIT/OFFSET; a non-positive limit means the default page.
func (w *where) page(limit, offset int) string {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return " LIMIT " + w.arg(limit) + " OFFSET " + w.arg(offset)
}
