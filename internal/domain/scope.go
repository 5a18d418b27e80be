package domain

// Caller is the authenticated principal of a request.
type Caller struct {
	ID          int64  `json:"id"`
	Role        Role   `json:"role"`
	AffiliateID *int64 `json:"affiliate_id,omitempty"`
}

// IsAdmin reports whether the caller is the platform root.
func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// IsAffiliate reports whether the caller is an affiliate.
func (c Caller) IsAffiliate() bool { return c.Role == RoleAffiliate }

// View narrows what an affiliate sees.
type View string

const (
	ViewAll      View = "all"      // own rows plus referred rows
	ViewOwn      View = "own"      // own rows that are not self-referred
	ViewReferred View = "referred" // rows of referred clients only
)

// Scope is the single row-visibility predicate shared by lists,
// submissions, clients and dashboards.
type Scope struct {
	Role     Role
	UserID   int64
	ClientID *int64 // admin-only explicit narrowing
	View     View
}

// ScopeFor builds the scope of a caller. clientID is honoured for admins only.
func ScopeFor(c Caller, clientID *int64, view View) Scope {
	s := Scope{Role: c.Role, UserID: c.ID, View: ViewAll}
	switch c.Role {
	case RoleAdmin:
		if clientID != nil && *clientID != 0 {
			s.ClientID = clientID
		}
	case RoleAffiliate:
		if view == ViewOwn || view == ViewReferred {
			s.View = view
		}
	}
	return s
}

// Allows evaluates the predicate in memory for a row owned by ownerID
// and carrying the denormalized affiliateID.
func (s Scope) Allows(ownerID int64, affiliateID *int64) bool {
	referred := affiliateID != nil && *affiliateID == s.UserID
	switch s.Role {
	case RoleAdmin:
		return s.ClientID == nil || *s.ClientID == ownerID
	case RoleAffiliate:
		switch s.View {
		case ViewOwn:
			return ownerID == s.UserID && !referred
		case ViewReferred:
			return referred
		default:
			return ownerID == s.UserID || referred
		}
	case RoleCustomer:
		return ownerID == s.UserID
	}
	return false
}
