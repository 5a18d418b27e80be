// Package domain defines the back-office entities: clients, lists, forms,
// submissions, payments and the status timeline, plus the typed errors
// every layer shares.
package domain

import "time"

// ============================================================
// Clients & negotiated pricing
// ============================================================

// Role is the access level of a client account.
type Role int

const (
	RoleAdmin     Role = 1 // platform root, never has an affiliate
	RoleAffiliate Role = 2 // partner/reseller, may refer other clients
	RoleCustomer  Role = 3 // end customer
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r >= RoleAdmin && r <= RoleCustomer }

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleAffiliate:
		return "affiliate"
	case RoleCustomer:
		return "customer"
	}
	return "unknown"
}

// ListConsultationServiceID is the service id reserved for list consultation.
const ListConsultationServiceID int64 = 1

// Client is an account of any role. AffiliateID points at the affiliate
// who referred this client.
type Client struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Document     string    `json:"document"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	AffiliateID  *int64    `json:"affiliateId,omitempty"`
	PriceConsult float64   `json:"price_consult"`
	APIKey       string    `json:"-"`
	UsesPix      bool      `json:"uses_pix"`
	PixKey       string    `json:"pix_key,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasAffiliate reports whether the client was referred by an affiliate.
func (c *Client) HasAffiliate() bool { return c.AffiliateID != nil && *c.AffiliateID != 0 }

// UserService is the negotiated per-item price a client pays for a service.
type UserService struct {
	ClientID  int64   `json:"client_id"`
	ServiceID int64   `json:"service_id"`
	Cost      float64 `json:"cost"`
}

// SignupRequest is the payload for POST /clients.
type SignupRequest struct {
	Username     string  `json:"username"`
	Document     string  `json:"document"`
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	Role         Role    `json:"role,omitempty"`
	AffiliateID  *int64  `json:"affiliateId,omitempty"`
	PriceConsult float64 `json:"price_consult,omitempty"`
	APIKey       string  `json:"api_key,omitempty"`
	UsesPix      bool    `json:"uses_pix,omitempty"`
	PixKey       string  `json:"pix_key,omitempty"`
}

// Fees separates what the UI shows from what the store charges.
type Fees struct {
	DisplayFee float64 `json:"display_fee"`
	BilledFee  float64 `json:"billed_fee"`
}
