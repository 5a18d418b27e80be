package domain

// Trigger names the entry point requesting a status change.
// Every entry point reaches the state machine through one of these.
type Trigger string

const (
	TriggerCreate           Trigger = "create"
	TriggerAdminCreate      Trigger = "admin_create"
	TriggerWebhookReceived  Trigger = "webhook_received"
	TriggerWebhookFailed    Trigger = "webhook_failed"
	TriggerReceiptUpload    Trigger = "receipt_upload"
	TriggerReceiptApproval  Trigger = "receipt_approval"
	TriggerAffiliateConfirm Trigger = "affiliate_confirm"
	TriggerAdminSet         Trigger = "admin_set"
	TriggerGroupCascade     Trigger = "group_cascade"
	TriggerFormInvalidate   Trigger = "form_invalidate"
	TriggerFormResubmit     Trigger = "form_resubmit"
	TriggerFormApprove      Trigger = "form_approve"
)

// ListTransitionAllowed reports whether trigger may move a list from -> to.
// A false result for a payment trigger on an already-paid row is what keeps
// late webhooks and repeated approvals from regressing the status.
func ListTransitionAllowed(trigger Trigger, from, to ListStatus, payed bool) bool {
	if !to.Valid() {
		return false
	}
	switch trigger {
	case TriggerCreate:
		return from == "" && to == ListAwaitingPayment
	case TriggerAdminCreate:
		return from == "" && to == ListPaymentApproved
	case TriggerWebhookReceived:
		return !payed && from.PrePayment() &&
			(to == ListPaymentApproved || to == ListPaymentConfirmed)
	case TriggerWebhookFailed:
		return !payed && from.PrePayment() && to == ListPaymentError
	case TriggerReceiptUpload:
		return !payed && from.PrePayment() &&
			(to == ListAwaitingPaymentReview || to == ListAwaitingPaymentConfirmation)
	case TriggerReceiptApproval:
		switch to {
		case ListPaymentSettled:
			return from.PrePayment() || from == ListPaymentApproved || from == ListPaymentConfirmed ||
				from == ListAwaitingDispatchConfirmation || from == ListForwardedByAffiliate ||
				from == ListPaymentSettled
		case ListAwaitingDispatchConfirmation:
			return from.PrePayment() || from == ListPaymentConfirmed || from == ListAwaitingDispatchConfirmation
		}
		return false
	case TriggerAffiliateConfirm:
		return to == ListForwardedByAffiliate &&
			(from.PrePayment() || from == ListPaymentConfirmed ||
				from == ListAwaitingDispatchConfirmation || from == ListForwardedByAffiliate)
	case TriggerAdminSet, TriggerGroupCascade:
		return true
	}
	return false
}

// SubmissionTransitionAllowed reports whether trigger may move a submission from -> to.
func SubmissionTransitionAllowed(trigger Trigger, from, to SubmissionStatus, payed bool) bool {
	if !to.Valid() {
		return false
	}
	switch trigger {
	case TriggerCreate:
		return from == "" && to == SubmissionAwaitingPayment
	case TriggerAdminCreate:
		return from == "" && to == SubmissionPaymentApproved
	case TriggerWebhookReceived:
		return !payed && from.PrePayment() &&
			(to == SubmissionPaymentApproved || to == SubmissionPaymentConfirmed)
	case TriggerWebhookFailed:
		return !payed && from.PrePayment() && to == SubmissionPaymentError
	case TriggerReceiptUpload:
		return !payed && from.PrePayment() &&
			(to == SubmissionAwaitingPaymentReview || to == SubmissionAwaitingPaymentConfirmation)
	case TriggerReceiptApproval:
		switch to {
		case SubmissionPaymentSettled:
			return from.PrePayment() || from == SubmissionPaymentApproved || from == SubmissionPaymentConfirmed ||
				from == SubmissionAwaitingDispatchConfirmation || from == SubmissionForwardedByAffiliate ||
				from == SubmissionPaymentSettled
		case SubmissionAwaitingDispatchConfirmation:
			return from.PrePayment() || from == SubmissionPaymentConfirmed ||
				from == SubmissionAwaitingDispatchConfirmation
		}
		return false
	case TriggerAffiliateConfirm:
		return to == SubmissionForwardedByAffiliate &&
			(from.PrePayment() || from == SubmissionPaymentConfirmed ||
				from == SubmissionAwaitingDispatchConfirmation || from == SubmissionForwardedByAffiliate)
	case TriggerFormInvalidate:
		// Rejection sends the form back before payment; paid forms stay put.
		return to == SubmissionFormRejected && !payed && from.PrePayment()
	case TriggerFormResubmit:
		return to == SubmissionAwaitingReview && from == SubmissionFormRejected
	case TriggerFormApprove:
		return to == SubmissionApproved && from.Reviewable()
	case TriggerAdminSet:
		return true
	}
	return false
}
