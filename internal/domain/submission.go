package domain

import "time"

// ============================================================
// Services, dynamic forms and submissions
// ============================================================

// Service is a product offered through a dynamic form (e.g. background check).
type Service struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// FieldType is the input type of a form field.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldFile    FieldType = "file"
	FieldDate    FieldType = "date"
	FieldTel     FieldType = "tel"
	FieldCPFCNPJ FieldType = "cpfcnpj"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldFile, FieldDate, FieldTel, FieldCPFCNPJ:
		return true
	}
	return false
}

// ServiceForm is one version of a service's form. At most one is active per service.
type ServiceForm struct {
	ID        int64       `json:"id"`
	ServiceID int64       `json:"service_id"`
	Version   int         `json:"version"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	Fields    []FormField `json:"fields,omitempty"`
}

// FormField is a field definition, ordered by Position.
type FormField struct {
	ID            int64     `json:"id"`
	ServiceFormID int64     `json:"service_form_id"`
	Label         string    `json:"label"`
	Type          FieldType `json:"type"`
	Required      bool      `json:"required"`
	Position      int       `json:"position"`
}

// FormFieldInput describes a field when creating a form version.
type FormFieldInput struct {
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// Submission is a filled service form (ServiceFormSubmission).
// Payed mirrors the list column and guards the payment paths.
type Submission struct {
	ID                     int64            `json:"id"`
	UserID                 int64            `json:"user_id"`
	ServiceFormID          int64            `json:"service_form_id"`
	ServiceID              int64            `json:"service_id"`
	Price                  float64          `json:"price"`
	Status                 SubmissionStatus `json:"status"`
	Protocol               string           `json:"protocol"`
	AffiliateID            *int64           `json:"affiliate_id,omitempty"`
	ServicePaymentID       *string          `json:"service_payment_id,omitempty"`
	ComprovanteURL         *string          `json:"comprovanteUrl,omitempty"`
	GroupPaymentID         *int64           `json:"group_payment_id,omitempty"`
	ConfirmedAffiliateList bool             `json:"confirmed_affiliate_list"`
	Payed                  bool             `json:"payed"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	Answers                []Answer         `json:"answers,omitempty"`
}

// HasAffiliate reports whether the submission was placed through an affiliate.
func (s *Submission) HasAffiliate() bool { return s.AffiliateID != nil && *s.AffiliateID != 0 }

// Answer is the submitted value of one field (ServiceFormFieldAnswer).
// For file fields Value holds the blob key.
type Answer struct {
	ID            int64      `json:"id"`
	SubmissionID  int64      `json:"submission_id"`
	FormFieldID   int64      `json:"form_field_id"`
	Value         string     `json:"value"`
	InvalidReason *string    `json:"invalid_reason,omitempty"`
	Field         *FormField `json:"field,omitempty"`
	File          *BlobFile  `json:"file"`
}

// SubmissionInput carries answers keyed by form field id.
type SubmissionInput struct {
	ServiceID int64           `json:"service_id"`
	Answers   map[int64]string `json:"answers"`
}

// SubmissionFilter narrows submission queries. Scope is always applied.
type SubmissionFilter struct {
	Scope     Scope
	Status    SubmissionStatus
	ServiceID int64
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// SubmissionDetail is the read model for GET /submissions/{id}.
type SubmissionDetail struct {
	Submission        *Submission     `json:"submission"`
	History           []StatusHistory `json:"history"`
	GroupPaymentTotal *float64        `json:"group_payment_total,omitempty"`
}

// FileUpload is one file answer received with a submission.
type FileUpload struct {
	FieldID  int64
	Filename string
	Data     []byte
}
