package domain

// ============================================================
// Status vocabularies
// ============================================================
//
// Lists and service form submissions run two state machines with
// near-identical Portuguese vocabularies. They are kept as distinct
// types so a list status can never be stored on a submission by accident.
// Values are persisted verbatim; capitalization is significant
// ("Aguardando aprovação" != "Aguardando Aprovação").

// ListStatus is the status column of a List or ListGroup.
type ListStatus string

const (
	ListAwaitingPayment              ListStatus = "aguardando pagamento"
	ListAwaitingApproval             ListStatus = "aguardando aprovação"
	ListAwaitingPaymentReview        ListStatus = "Aguardando aprovação do pagamento"
	ListAwaitingPaymentConfirmation  ListStatus = "Aguardando confirmação do pagamento"
	ListPaymentApproved              ListStatus = "pagamento aprovado"
	ListPaymentConfirmed             ListStatus = "pagamento confirmado"
	ListAwaitingDispatchConfirmation ListStatus = "Aguardando confirmação do envio"
	ListPaymentSettled               ListStatus = "Pagamento aprovado"
	ListForwardedByAffiliate         ListStatus = "Aguardando Aprovação"
	ListPaymentError                 ListStatus = "erro no pagamento"
	ListError                        ListStatus = "erro"
	ListCancelled                    ListStatus = "cancelada"
	ListFinished                     ListStatus = "finalizada"
)

// SubmissionStatus is the status column of a ServiceFormSubmission.
type SubmissionStatus string

const (
	SubmissionAwaitingPayment              SubmissionStatus = "aguardando pagamento"
	SubmissionFormRejected                 SubmissionStatus = "Formulario Reprovado"
	SubmissionAwaitingReview               SubmissionStatus = "Aguardando aprovação"
	SubmissionApproved                     SubmissionStatus = "Aprovado"
	SubmissionAwaitingPaymentReview        SubmissionStatus = "Aguardando aprovação do pagamento"
	SubmissionAwaitingPaymentConfirmation  SubmissionStatus = "Aguardando confirmação do pagamento"
	SubmissionPaymentApproved              SubmissionStatus = "pagamento aprovado"
	SubmissionPaymentConfirmed             SubmissionStatus = "pagamento confirmado"
	SubmissionAwaitingDispatchConfirmation SubmissionStatus = "Aguardando confirmação do envio"
	SubmissionPaymentSettled               SubmissionStatus = "Pagamento aprovado"
	SubmissionForwardedByAffiliate         SubmissionStatus = "Aguardando Aprovação"
	SubmissionPaymentError                 SubmissionStatus = "erro no pagamento"
	SubmissionError                        SubmissionStatus = "erro"
	SubmissionCancelled                    SubmissionStatus = "cancelada"
	SubmissionFinished                     SubmissionStatus = "finalizada"
)

// Stage is one step of the operational pipeline shared by lists and
// submissions once payment is settled (filing, court order, bureaus).
type Stage string

const (
	StageAwaitingFiling Stage = "aguardando protocolar"
	StageCourtOrder     Stage = "decisão judicial"
	StageSPC            Stage = "spc"
	StageBoaVista       Stage = "boa vista"
	StageCenprotSP      Stage = "cenprot sp"
	StageCenprotBR      Stage = "cenprot br"
	StageQuod           Stage = "quod"
	StageSerasa         Stage = "serasa"
)

// Stages lists the pipeline tail in display order.
var Stages = []Stage{
	StageAwaitingFiling, StageCourtOrder, StageSPC, StageBoaVista,
	StageCenprotSP, StageCenprotBR, StageQuod, StageSerasa,
}

// pipelineTail maps each stage onto both vocabularies.
var pipelineTail = map[Stage]struct {
	list       ListStatus
	submission SubmissionStatus
}{
	StageAwaitingFiling: {"aguardando protocolar", "aguardando protocolar"},
	StageCourtOrder:     {"decisão judicial", "decisão judicial"},
	StageSPC:            {"spc", "spc"},
	StageBoaVista:       {"boa vista", "boa vista"},
	StageCenprotSP:      {"cenprot sp", "cenprot sp"},
	StageCenprotBR:      {"cenprot br", "cenprot br"},
	StageQuod:           {"quod", "quod"},
	StageSerasa:         {"serasa", "serasa"},
}

// ListStatusForStage returns the list status for a pipeline stage.
func ListStatusForStage(s Stage) ListStatus { return pipelineTail[s].list }

// SubmissionStatusForStage returns the submission status for a pipeline stage.
func SubmissionStatusForStage(s Stage) SubmissionStatus { return pipelineTail[s].submission }

// Stage reports the pipeline stage a list status belongs to, if any.
func (s ListStatus) Stage() (Stage, bool) {
	for st, v := range pipelineTail {
		if v.list == s {
			return st, true
		}
	}
	return "", false
}

// Stage reports the pipeline stage a submission status belongs to, if any.
func (s SubmissionStatus) Stage() (Stage, bool) {
	for st, v := range pipelineTail {
		if v.submission == s {
			return st, true
		}
	}
	return "", false
}

type statusSet[S ~string] map[S]struct{}

func setOf[S ~string](values ...S) statusSet[S] {
	out := make(statusSet[S], len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func (s statusSet[S]) has(v S) bool {
	_, ok := s[v]
	return ok
}

var (
	listBase = setOf(
		ListAwaitingPayment, ListAwaitingApproval, ListAwaitingPaymentReview,
		ListAwaitingPaymentConfirmation, ListPaymentApproved, ListPaymentConfirmed,
		ListAwaitingDispatchConfirmation, ListPaymentSettled, ListForwardedByAffiliate,
		ListPaymentError, ListError, ListCancelled, ListFinished,
	)
	listTerminal   = setOf(ListError, ListCancelled, ListFinished)
	listPrePayment = setOf(
		ListAwaitingPayment, ListAwaitingApproval, ListAwaitingPaymentReview,
		ListAwaitingPaymentConfirmation, ListPaymentError,
	)

	submissionBase = setOf(
		SubmissionAwaitingPayment, SubmissionFormRejected, SubmissionAwaitingReview,
		SubmissionApproved, SubmissionAwaitingPaymentReview, SubmissionAwaitingPaymentConfirmation,
		SubmissionPaymentApproved, SubmissionPaymentConfirmed, SubmissionAwaitingDispatchConfirmation,
		SubmissionPaymentSettled, SubmissionForwardedByAffiliate, SubmissionPaymentError,
		SubmissionError, SubmissionCancelled, SubmissionFinished,
	)
	submissionTerminal   = setOf(SubmissionError, SubmissionCancelled, SubmissionFinished)
	submissionPrePayment = setOf(
		SubmissionAwaitingPayment, SubmissionFormRejected, SubmissionAwaitingReview,
		SubmissionApproved, SubmissionAwaitingPaymentReview, SubmissionAwaitingPaymentConfirmation,
		SubmissionPaymentError,
	)
	submissionReviewable = setOf(
		SubmissionAwaitingPayment, SubmissionAwaitingReview, SubmissionFormRejected,
	)
)

// Valid reports whether s belongs to the list vocabulary.
func (s ListStatus) Valid() bool {
	if listBase.has(s) {
		return true
	}
	_, ok := s.Stage()
	return ok
}

// Terminal reports whether no further transition is expected.
func (s ListStatus) Terminal() bool { return listTerminal.has(s) }

// PrePayment reports whether the list still waits for a payment to be acknowledged.
func (s ListStatus) PrePayment() bool { return listPrePayment.has(s) }

// PaymentAcknowledged reports whether at least one settlement hop has happened.
func (s ListStatus) PaymentAcknowledged() bool {
	return s.Valid() && !s.PrePayment() && !s.Terminal() || s == ListFinished
}

// Valid reports whether s belongs to the submission vocabulary.
func (s SubmissionStatus) Valid() bool {
	if submissionBase.has(s) {
		return true
	}
	_, ok := s.Stage()
	return ok
}

// Terminal reports whether no further transition is expected.
func (s SubmissionStatus) Terminal() bool { return submissionTerminal.has(s) }

// PrePayment reports whether the submission still waits for a payment to be acknowledged.
func (s SubmissionStatus) PrePayment() bool { return submissionPrePayment.has(s) }

// PaymentAcknowledged reports whether at least one settlement hop has happened.
func (s SubmissionStatus) PaymentAcknowledged() bool {
	return s.Valid() && !s.PrePayment() && !s.Terminal() || s == SubmissionFinished
}

// Reviewable reports whether an admin may approve the form answers.
func (s SubmissionStatus) Reviewable() bool { return submissionReviewable.has(s) }
