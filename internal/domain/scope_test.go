package domain

import (
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestScope_Allows(t *testing.T) {
	const affiliate, customer, other = 2, 30, 31

	tests := []struct {
		name        string
		scope       Scope
		owner       int64
		affiliateID *int64
		want        bool
	}{
		{"admin sees all", ScopeFor(Caller{ID: 1, Role: RoleAdmin}, nil, ""), other, nil, true},
		{"admin narrowed by client", ScopeFor(Caller{ID: 1, Role: RoleAdmin}, ptr(int64(customer)), ""), other, nil, false},
		{"customer own", ScopeFor(Caller{ID: customer, Role: RoleCustomer}, nil, ""), customer, ptr(int64(affiliate)), true},
		{"customer other", ScopeFor(Caller{ID: customer, Role: RoleCustomer}, nil, ""), other, nil, false},
		{"customer cannot narrow", ScopeFor(Caller{ID: customer, Role: RoleCustomer}, ptr(int64(other)), ""), other, nil, false},
		{"affiliate own", ScopeFor(Caller{ID: affiliate, Role: RoleAffiliate}, nil, ""), affiliate, nil, true},
		{"affiliate referred", ScopeFor(Caller{ID: affiliate, Role: RoleAffiliate}, nil, ""), customer, ptr(int64(affiliate)), true},
		{"affiliate unrelated", ScopeFor(Caller{ID: affiliate, Role: RoleAffiliate}, nil, ""), other, ptr(int64(99)), false},
		{"affiliate own view drops referred", ScopeFor(Caller{ID: affiliate, Role: RoleAffiliate}, nil, ViewOwn), customer, ptr(int64(affiliate)), false},
		{"affiliate own view drops self-referred", ScopeFor(Caller{ID: affiliate, Role: RoleAffiliate}, nil, ViewOwn), affiliate, ptr(int64(affiliate)), false},
		{"affiliate referred view", ScopeFor(Caller{ID: affiliate, Role: RoleAffiliate}, nil, ViewReferred), affiliate, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.Allows(tt.owner, tt.affiliateID); got != tt.want {
				t.Errorf("Allows(%d) = %v, want %v", tt.owner, got, tt.want)
			}
		})
	}
}

func TestStatusHistory_ExactlyOneForeignKey(t *testing.T) {
	for _, kind := range []EntityKind{KindList, KindListGroup, KindSubmission} {
		h := NewStatusHistory(kind, 7, "erro", time.Now())
		got, ok := h.Kind()
		if !ok || got != kind {
			t.Errorf("NewStatusHistory(%s) tagged %s (single=%v)", kind, got, ok)
		}
	}

	h := StatusHistory{ListID: ptr(int64(1)), SubmissionID: ptr(int64(2))}
	if _, ok := h.Kind(); ok {
		t.Error("row with two foreign keys must not validate")
	}
}

func TestProtocols(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	if got := ListProtocol(now, 12); got != "20240309_140507-000012" {
		t.Errorf("ListProtocol = %q", got)
	}
	if got := SubmissionProtocol(now, 3); got != "20240309-000003" {
		t.Errorf("SubmissionProtocol = %q", got)
	}
}

func TestProtocols_SortInSequenceOrder(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	for _, pair := range [][2]int64{{9, 10}, {99, 100}, {999, 1000}} {
		if a, b := SubmissionProtocol(now, pair[0]), SubmissionProtocol(now, pair[1]); a >= b {
			t.Errorf("submission protocols out of order: %q >= %q", a, b)
		}
		if a, b := ListProtocol(now, pair[0]), ListProtocol(now, pair[1]); a >= b {
			t.Errorf("list protocols out of order: %q >= %q", a, b)
		}
	}
}

func TestWebhookEvent_CorrelationID(t *testing.T) {
	ev := &WebhookEvent{Event: EventPaymentReceived, Payment: &WebhookPayment{ID: "pay_1", PixQrCodeID: "qr_1"}}
	if ev.CorrelationID() != "qr_1" {
		t.Errorf("expected pixQrCodeId to win, got %q", ev.CorrelationID())
	}
	ev.Payment.PixQrCodeID = ""
	if ev.CorrelationID() != "pay_1" {
		t.Errorf("expected fallback to payment id, got %q", ev.CorrelationID())
	}
	if (&WebhookEvent{Event: EventPaymentReceived}).CorrelationID() != "" {
		t.Error("missing payment must yield empty correlation id")
	}
}
