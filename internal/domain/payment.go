package domain

import (
	"fmt"
	"math"
	"time"
)

// ============================================================
// Payment gateway & reconciliation
// ============================================================

// Gateway webhook events.
const (
	EventPaymentReceived  = "PAYMENT_RECEIVED"
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventPaymentCreated   = "PAYMENT_CREATED"
	EventPaymentRejected  = "PAYMENT_REJECTED"
	EventPaymentFailed    = "PAYMENT_FAILED"
)

// PayableKind selects which entity a payment operation targets.
type PayableKind string

const (
	PayableList       PayableKind = "list"
	PayableSubmission PayableKind = "submission"
)

// Valid reports whether k is a known payable kind.
func (k PayableKind) Valid() bool { return k == PayableList || k == PayableSubmission }

// PixCharge is what the gateway returns when a PIX charge is created.
type PixCharge struct {
	ID           string `json:"id"`
	EncodedImage string `json:"encodedImage"`
	Payload      string `json:"payload"`
}

// IssuedCharge records a gateway charge issued for a list or submission.
// Rows are never deleted, so a QR code a payer already holds still
// correlates after a newer charge replaced it on the entity.
type IssuedCharge struct {
	PaymentID    string      `json:"payment_id"`
	Kind         PayableKind `json:"kind"`
	EntityID     int64       `json:"entity_id"`
	Amount       float64     `json:"amount"`
	Route        RouteKind   `json:"route"`
	EncodedImage string      `json:"encodedImage,omitempty"`
	Payload      string      `json:"payload,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Covers reports whether the charge was issued for amount, to the cent.
func (c *IssuedCharge) Covers(amount float64) bool {
	return math.Round(c.Amount*100) == math.Round(amount*100)
}

// ChargeRequest is the payload for POST /cobranca/pix.
type ChargeRequest struct {
	Kind PayableKind `json:"kind"`
	ID   int64       `json:"id"`
}

// RouteKind tells how a payer is expected to pay.
type RouteKind string

const (
	RoutePlatform  RouteKind = "platform"  // platform-wide gateway key
	RouteAffiliate RouteKind = "affiliate" // affiliate's own gateway key
	RoutePixKey    RouteKind = "pix_key"   // manual transfer to the affiliate's PIX key
)

// PaymentRoute is the resolved payment method for a payer.
type PaymentRoute struct {
	Kind        RouteKind `json:"kind"`
	Token       string    `json:"-"`
	PixKey      string    `json:"pix_key,omitempty"`
	AffiliateID *int64    `json:"affiliate_id,omitempty"`
}

// Charge is the result of POST /cobranca/pix.
type Charge struct {
	Kind         PayableKind `json:"kind"`
	EntityID     int64       `json:"id"`
	ChargeID     string      `json:"charge_id,omitempty"`
	Amount       float64     `json:"amount"`
	EncodedImage string      `json:"encodedImage,omitempty"`
	Payload      string      `json:"payload,omitempty"`
	PixKey       string      `json:"pix_key,omitempty"`
	Route        RouteKind   `json:"route"`
	Reused       bool        `json:"reused,omitempty"`
}

// WebhookPayment is the payment object of a gateway push.
type WebhookPayment struct {
	ID                string  `json:"id"`
	PixQrCodeID       string  `json:"pixQrCodeId"`
	Status            string  `json:"status,omitempty"`
	Value             float64 `json:"value,omitempty"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

// WebhookEvent is the gateway push body.
type WebhookEvent struct {
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event"`
	Payment *WebhookPayment `json:"payment"`
}

// CorrelationID is the stored charge id the event refers to.
func (e *WebhookEvent) CorrelationID() string {
	if e.Payment == nil {
		return ""
	}
	if e.Payment.PixQrCodeID != "" {
		return e.Payment.PixQrCodeID
	}
	return e.Payment.ID
}

// DedupeKey identifies one delivery of one event for one charge.
func (e *WebhookEvent) DedupeKey() string {
	return e.Event + ":" + e.CorrelationID()
}

// WebhookOutcome summarizes what a webhook delivery did.
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookNoMatch   WebhookOutcome = "no_match"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookInvalid   WebhookOutcome = "invalid"
)

// WebhookResult is the informational body returned with every 200.
type WebhookResult struct {
	Outcome WebhookOutcome `json:"outcome"`
	Message string         `json:"message"`
	Kind    PayableKind    `json:"kind,omitempty"`
	ID      int64          `json:"id,omitempty"`
	Status  string         `json:"status,omitempty"`
}

// ReceiptUpload carries a manual proof of payment for one or more rows.
type ReceiptUpload struct {
	Kind        PayableKind
	IDs         []int64
	Filename    string
	ContentType string
	Data        []byte
}

// ReceiptResult is returned after a receipt upload.
type ReceiptResult struct {
	Kind           PayableKind `json:"kind"`
	IDs            []int64     `json:"ids"`
	ComprovanteURL string      `json:"comprovanteUrl"`
	GroupPaymentID *int64      `json:"group_payment_id,omitempty"`
	Status         string      `json:"status"`
}

// ApprovalResult is returned after a manual receipt approval.
type ApprovalResult struct {
	Kind   PayableKind `json:"kind"`
	IDs    []int64     `json:"ids"`
	Status string      `json:"status"`
}

// PaymentStatus is the polling read model.
type PaymentStatus struct {
	Kind   PayableKind `json:"kind"`
	ID     int64       `json:"id"`
	Status string      `json:"status"`
	Payed  bool        `json:"payed"`
	Done   bool        `json:"done"`
}

// GroupTotal is the computed-on-read sum of a group payment.
type GroupTotal struct {
	GroupPaymentID int64   `json:"group_payment_id"`
	Total          float64 `json:"group_payment_total"`
	Lists          int     `json:"lists"`
	Submissions    int     `json:"submissions"`
}

// BlobFile is a retrieved object. Base64 is set for images and PDFs.
type BlobFile struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Base64      string `json:"base64,omitempty"`
	Data        []byte `json:"-"`
}

// Blob store folders.
const (
	FolderReceipts = "comprovantes"
	FolderForms    = "formularios"
)

// ExternalReference is the reference sent to the gateway with a charge.
func ExternalReference(kind PayableKind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}
