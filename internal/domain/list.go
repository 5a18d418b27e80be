package domain

import "time"

// ============================================================
// Lists (batches of name/document records)
// ============================================================

// List is a batch of names submitted for consultation.
// Price is computed once at creation/update and never on read.
type List struct {
	ID                     int64       `json:"id"`
	Name                   string      `json:"list_name"`
	Status                 ListStatus  `json:"status"`
	Protocol               string      `json:"protocol"`
	ClientID               int64       `json:"client_id"`
	AffiliateID            *int64      `json:"affiliateId,omitempty"`
	ListGroupID            *int64      `json:"list_group_id,omitempty"`
	Price                  float64     `json:"price"`
	NamesQuantity          int         `json:"names_quantity"`
	ListPaymentID          *string     `json:"list_payment_id,omitempty"`
	ComprovanteURL         *string     `json:"comprovanteUrl,omitempty"`
	GroupPaymentID         *int64      `json:"group_payment_id,omitempty"`
	ConfirmedAffiliateList bool        `json:"confirmed_affiliate_list"`
	Payed                  bool        `json:"payed"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
	Names                  []NamesList `json:"names,omitempty"`
}

// HasAffiliate reports whether the list was submitted through an affiliate.
func (l *List) HasAffiliate() bool { return l.AffiliateID != nil && *l.AffiliateID != 0 }

// NamesList is one name/document entry of a list.
type NamesList struct {
	ID     int64  `json:"id,omitempty"`
	Nome   string `json:"nome"`
	CPF    string `json:"cpf"`
	ListID int64  `json:"list_id,omitempty"`
}

// ListGroup batches lists into a processing window.
type ListGroup struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	ExpiresAt time.Time  `json:"expires_at"`
	Status    ListStatus `json:"status"`
	Admin     bool       `json:"admin"`
	CreatedAt time.Time  `json:"created_at"`
	Lists     []List     `json:"lists,omitempty"`
}

// ListInput is the payload for POST /list (create when ID is zero, update otherwise).
type ListInput struct {
	ID          int64       `json:"id,omitempty"`
	Name        string      `json:"list_name"`
	ClientID    int64       `json:"client_id,omitempty"`
	ListGroupID *int64      `json:"list_group_id,omitempty"`
	Names       []NamesList `json:"names"`
}

// ListFilter narrows list queries. Scope is always applied.
type ListFilter struct {
	Scope   Scope
	Status  ListStatus
	GroupID *int64
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

// ListGroupInput is the payload for POST /list-groups.
type ListGroupInput struct {
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
	Admin     bool      `json:"admin"`
}

// ListDetail is the read model for GET /list/{protocol}.
type ListDetail struct {
	List              *List           `json:"list"`
	History           []StatusHistory `json:"history"`
	GroupPaymentTotal *float64        `json:"group_payment_total,omitempty"`
	DisplayFee        float64         `json:"display_fee"`
}
