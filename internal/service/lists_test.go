package service_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/service"
)

func TestListSave_AdminCreatedListSkipsPayment(t *testing.T) {
	h := newHarness(service.PaymentConfig{})
	admin := h.store.addClient(domain.Client{Role: domain.RoleAdmin}, 0)
	cust := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)

	l, err := h.lists.Save(context.Background(), callerOf(admin), &domain.ListInput{
		Name: "Interna", ClientID: cust.ID, Names: names(4),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if l.Status != domain.ListPaymentApproved || l.Price != 0 || l.ClientID != cust.ID {
		t.Errorf("expected approved zero-price list owned by %d, got %+v", cust.ID, l)
	}
	want := []string{string(domain.ListPaymentApproved)}
	if hist := h.store.historyOf(domain.KindList, l.ID); !reflect.DeepEqual(hist, want) {
		t.Errorf("expected history %v, got %v", want, hist)
	}
}

func TestListSave_ProtocolsAreUnique(t *testing.T) {
	h := newHarness(service.PaymentConfig{})
	cust := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)

	seen := map[string]bool{}
	prev := ""
	for i := 0; i < 12; i++ {
		l := createList(t, h, cust, 1)
		if seen[l.Protocol] {
			t.Fatalf("duplicate protocol %q", l.Protocol)
		}
		if l.Protocol <= prev {
			t.Fatalf("protocol %q does not sort after %q", l.Protocol, prev)
		}
		seen[l.Protocol] = true
		prev = l.Protocol
	}
}

func TestListSave_AttachesToOpenGroup(t *testing.T) {
	h := newHarness(service.PaymentConfig{})
	ctx := context.Background()
	admin := h.store.addClient(domain.Client{Role: domain.RoleAdmin}, 0)
	cust := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)

	if _, err := h.groups.Create(ctx, callerOf(admin), &domain.ListGroupInput{
		Name: "Interno", ExpiresAt: time.Now().Add(time.Hour), Admin: true,
	}); err != nil {
		t.Fatalf("create admin group: %v", err)
	}
	open, err := h.groups.Create(ctx, callerOf(admin), &domain.ListGroupInput{
		Name: "Semana 12", ExpiresAt: time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	l := createList(t, h, cust, 2)
	if l.ListGroupID == nil || *l.ListGroupID != open.ID {
		t.Errorf("expected list attached to group %d, got %v", open.ID, l.ListGroupID)
	}
}

func TestListSave_NoPricingConfigured(t *testing.T) {
	h := newHarness(service.PaymentConfig{})
	cust := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)
	delete(h.store.userServices, [2]int64{cust.ID, domain.ListConsultationServiceID})

	_, err := h.lists.Save(context.Background(), callerOf(cust), &domain.ListInput{Name: "Lote", Names: names(1)})
	var nc *domain.ErrServiceNotConfigured
	if !errors.As(err, &nc) {
		t.Fatalf("expected ErrServiceNotConfigured, got %v", err)
	}
}

func TestListSave_Validation(t *testing.T) {
	h := newHarness(service.PaymentConfig{})
	cust := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)

	tests := []struct {
		name string
		in   domain.ListInput
	}{
		{"missing name", domain.ListInput{Names: names(1)}},
		{"no names", domain.ListInput{Name: "Lote"}},
		{"blank cpf", domain.ListInput{Name: "Lote", Names: []domain.NamesList{{Nome: "Maria", CPF: " "}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.lists.Save(context.Background(), callerOf(cust), &tt.in)
			var ve *domain.ErrValidation
			if !errors.As(err, &ve) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestListUpdate_RecomputesPriceUntilPaid(t *testing.T) {
	h := newHarness(service.PaymentConfig{PlatformAPIKey: "platform-key"})
	ctx := context.Background()
	cust := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)
	other := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)
	l := createList(t, h, cust, 1)

	updated, err := h.lists.Save(ctx, callerOf(cust), &domain.ListInput{ID: l.ID, Name: "Lote 2", Names: names(5)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Price != 50 || updated.NamesQuantity != 5 {
		t.Errorf("expected 5 names at 50, got %d at %v", updated.NamesQuantity, updated.Price)
	}

	_, err = h.lists.Save(ctx, callerOf(other), &domain.ListInput{ID: l.ID, Name: "x", Names: names(1)})
	var forbidden *domain.ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Errorf("expected forbidden for other customer, got %v", err)
	}

	charge, err := h.payments.CreateCharge(ctx, callerOf(cust), &domain.ChargeRequest{Kind: domain.PayableList, ID: l.ID})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	h.payments.HandleWebhook(ctx, "", received(charge.ChargeID))

	_, err = h.lists.Save(ctx, callerOf(cust), &domain.ListInput{ID: l.ID, Name: "Lote 3", Names: names(1)})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Errorf("expected conflict after payment, got %v", err)
	}
}

func TestListGet_Scoping(t *testing.T) {
	h := newHarness(service.PaymentConfig{})
	ctx := context.Background()
	aff := h.store.addClient(domain.Client{Role: domain.RoleAffiliate, PriceConsult: 15}, 8)
	cust := h.store.addClient(domain.Client{Role: domain.RoleCustomer, AffiliateID: &aff.ID, PriceConsult: 99}, 10)
	other := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)
	l := createList(t, h, cust, 2)

	detail, err := h.lists.Get(ctx, callerOf(cust), l.Protocol)
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if len(detail.List.Names) != 2 || len(detail.History) != 1 {
		t.Errorf("expected 2 names and 1 history row, got %d / %d", len(detail.List.Names), len(detail.History))
	}
	if detail.DisplayFee != 15 {
		t.Errorf("expected display fee from affiliate (15), got %v", detail.DisplayFee)
	}
	if detail.List.Price != 20 {
		t.Errorf("expected billed price from own cost (20), got %v", detail.List.Price)
	}

	if _, err := h.lists.Get(ctx, callerOf(aff), l.Protocol); err != nil {
		t.Errorf("expected referring affiliate to see the list, got %v", err)
	}
	_, err = h.lists.Get(ctx, callerOf(other), l.Protocol)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected not found for unrelated customer, got %v", err)
	}

	own, _, err := h.lists.List(ctx, callerOf(aff), nil, domain.ViewOwn, domain.ListFilter{})
	if err != nil {
		t.Fatalf("list own: %v", err)
	}
	if len(own) != 0 {
		t.Errorf("expected no own lists for the affiliate, got %d", len(own))
	}
	referred, _, err := h.lists.List(ctx, callerOf(aff), nil, domain.ViewReferred, domain.ListFilter{})
	if err != nil {
		t.Fatalf("list referred: %v", err)
	}
	if len(referred) != 1 {
		t.Errorf("expected one referred list, got %d", len(referred))
	}
}

func TestListGroup_CascadeOnlyToPaidLists(t *testing.T) {
	h := newHarness(service.PaymentConfig{PlatformAPIKey: "platform-key"})
	ctx := context.Background()
	admin := h.store.addClient(domain.Client{Role: domain.RoleAdmin}, 0)
	cust := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)
	g, err := h.groups.Create(ctx, callerOf(admin), &domain.ListGroupInput{Name: "Semana", ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	paid := createList(t, h, cust, 1)
	unpaid := createList(t, h, cust, 1)
	charge, err := h.payments.CreateCharge(ctx, callerOf(cust), &domain.ChargeRequest{Kind: domain.PayableList, ID: paid.ID})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	h.payments.HandleWebhook(ctx, "", received(charge.ChargeID))

	filing := domain.ListStatusForStage(domain.StageAwaitingFiling)
	out, err := h.groups.UpdateStatus(ctx, callerOf(admin), g.ID, filing)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if out.Status != filing || len(out.Lists) != 1 {
		t.Errorf("expected group in %q with 1 cascaded list, got %q / %d", filing, out.Status, len(out.Lists))
	}
	if got := h.store.list(paid.ID); got.Status != filing {
		t.Errorf("expected paid list in %q, got %q", filing, got.Status)
	}
	if got := h.store.list(unpaid.ID); got.Status != domain.ListAwaitingPayment {
		t.Errorf("expected unpaid list untouched, got %q", got.Status)
	}

	if _, err := h.groups.UpdateStatus(ctx, callerOf(cust), g.ID, filing); err == nil {
		t.Error("expected forbidden for customer")
	}

	if err := h.groups.Delete(ctx, callerOf(admin), g.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := h.store.list(paid.ID); got.ListGroupID != nil {
		t.Errorf("expected list detached from deleted group, got %v", *got.ListGroupID)
	}
}

func TestListSetStatus_AdminOnlyAndHistoryOnChange(t *testing.T) {
	h := newHarness(service.PaymentConfig{})
	ctx := context.Background()
	admin := h.store.addClient(domain.Client{Role: domain.RoleAdmin}, 0)
	cust := h.store.addClient(domain.Client{Role: domain.RoleCustomer}, 10)
	l := createList(t, h, cust, 1)

	if _, err := h.lists.SetStatus(ctx, callerOf(cust), l.ID, domain.ListCancelled); err == nil {
		t.Fatal("expected forbidden for customer")
	}
	for i := 0; i < 2; i++ {
		if _, err := h.lists.SetStatus(ctx, callerOf(admin), l.ID, domain.ListCancelled); err != nil {
			t.Fatalf("set status: %v", err)
		}
	}
	if hist := h.store.historyOf(domain.KindList, l.ID); len(hist) != 2 {
		t.Errorf("expected 2 history rows, got %v", hist)
	}
	if _, err := h.lists.SetStatus(ctx, callerOf(admin), l.ID, "qualquer"); err == nil {
		t.Error("expected validation error for unknown status")
	}
}
