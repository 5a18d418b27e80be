package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

func TestWhere_Scope(t *testing.T) {
	tests := []struct {
		name  string
		scope domain.Scope
		sql   string
		args  []any
	}{
		{"admin unrestricted", domain.Scope{Role: domain.RoleAdmin, UserID: 1}, "", nil},
		{"admin narrowed", domain.Scope{Role: domain.RoleAdmin, UserID: 1, ClientID: ptr(int64(30))},
			" WHERE client_id = $1", []any{int64(30)}},
		{"customer", domain.Scope{Role: domain.RoleCustomer, UserID: 30},
			" WHERE client_id = $1", []any{int64(30)}},
		{"affiliate all", domain.Scope{Role: domain.RoleAffiliate, UserID: 2, View: domain.ViewAll},
			" WHERE (client_id = $1 OR affiliate_id = $1)", []any{int64(2)}},
		{"affiliate own", domain.Scope{Role: domain.RoleAffiliate, UserID: 2, View: domain.ViewOwn},
			" WHERE (client_id = $1 AND affiliate_id IS DISTINCT FROM $1)", []any{int64(2)}},
		{"affiliate referred", domain.Scope{Role: domain.RoleAffiliate, UserID: 2, View: domain.ViewReferred},
			" WHERE affiliate_id = $1", []any{int64(2)}},
		{"unknown role", domain.Scope{}, " WHERE FALSE", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w where
			w.scope(tt.scope, "client_id", "affiliate_id")
			require.Equal(t, tt.sql, w.String())
			require.Equal(t, tt.args, w.args)
		})
	}
}

func TestWhere_ComposesWithFilters(t *testing.T) {
	var w where
	w.scope(domain.Scope{Role: domain.RoleCustomer, UserID: 30}, "user_id", "affiliate_id")
	w.and("status = " + w.arg("erro"))
	page := w.page(0, -5)

	require.Equal(t, " WHERE user_id = $1 AND status = $2", w.String())
	require.Equal(t, " LIMIT $3 OFFSET $4", page)
	require.Equal(t, []any{int64(30), "erro", 100, 0}, w.args)
}
