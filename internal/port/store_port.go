package port

import (
	"context"
	"time"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

// ClientRepo handles clients and their negotiated service pricing.
type ClientRepo interface {
	CreateClient(ctx context.Context, c *domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	GetClientByEmail(ctx context.Context, email string) (*domain.Client, error)
	ListClients(ctx context.Context, scope domain.Scope) ([]domain.Client, error)

	// GetUserService returns *domain.ErrNotFound when no pricing row exists.
	GetUserService(ctx context.Context, clientID, serviceID int64) (*domain.UserService, error)
	UpsertUserService(ctx context.Context, us domain.UserService) error
}

// ListRepo handles lists and their names.
// ForUpdate variants lock the rows and must run inside WithTx.
type ListRepo interface {
	CreateList(ctx context.Context, l *domain.List) (*domain.List, error)
	GetList(ctx context.Context, id int64) (*domain.List, error)
	GetListByProtocol(ctx context.Context, protocol string) (*domain.List, error)
	GetListForUpdate(ctx context.Context, id int64) (*domain.List, error)
	FindListByPaymentIDForUpdate(ctx context.Context, paymentID string) (*domain.List, error)
	ListsByIDsForUpdate(ctx context.Context, ids []int64) ([]domain.List, error)
	ListsByGroupPaymentForUpdate(ctx context.Context, groupPaymentID int64) ([]domain.List, error)
	PaidListsInGroupForUpdate(ctx context.Context, listGroupID int64) ([]domain.List, error)
	ListLists(ctx context.Context, f domain.ListFilter) ([]domain.List, int, error)

	// UpdateListContent writes name, price, quantity and group.
	UpdateListContent(ctx context.Context, l *domain.List) error
	// SaveListState writes status and payment columns.
	SaveListState(ctx context.Context, l *domain.List) error

	ReplaceNames(ctx context.Context, listID int64, names []domain.NamesList) error
	GetNames(ctx context.Context, listID int64) ([]domain.NamesList, error)
}

// ListGroupRepo handles list processing windows.
type ListGroupRepo interface {
	CreateListGroup(ctx context.Context, g *domain.ListGroup) (*domain.ListGroup, error)
	GetListGroup(ctx context.Context, id int64) (*domain.ListGroup, error)
	GetListGroupForUpdate(ctx context.Context, id int64) (*domain.ListGroup, error)
	ListListGroups(ctx context.Context) ([]domain.ListGroup, error)
	// OpenListGroup returns the earliest non-admin group still open at now.
	OpenListGroup(ctx context.Context, now time.Time) (*domain.ListGroup, error)
	SaveListGroupStatus(ctx context.Context, id int64, status domain.ListStatus) error
	// DeleteListGroup nulls members' list_group_id and removes the group.
	DeleteListGroup(ctx context.Context, id int64) error
}

// CatalogRepo handles services, form versions and field definitions.
type CatalogRepo interface {
	CreateService(ctx context.Context, s *domain.Service) (*domain.Service, error)
	GetService(ctx context.Context, id int64) (*domain.Service, error)
	GetServiceForUpdate(ctx context.Context, id int64) (*domain.Service, error)
	ListServices(ctx context.Context) ([]domain.Service, error)

	// CreateForm inserts an inactive form at the next version with its fields.
	CreateForm(ctx context.Context, f *domain.ServiceForm) (*domain.ServiceForm, error)
	GetForm(ctx context.Context, id int64) (*domain.ServiceForm, error)
	GetActiveForm(ctx context.Context, serviceID int64) (*domain.ServiceForm, error)
	ListForms(ctx context.Context, serviceID int64) ([]domain.ServiceForm, error)
	DeactivateForms(ctx context.Context, serviceID int64) error
	ActivateForm(ctx context.Context, formID int64) error
}

// SubmissionRepo handles service form submissions and their answers.
type SubmissionRepo interface {
	CreateSubmission(ctx context.Context, s *domain.Submission) (*domain.Submission, error)
	InsertAnswers(ctx context.Context, submissionID int64, answers []domain.Answer) error
	GetSubmission(ctx context.Context, id int64) (*domain.Submission, error)
	GetSubmissionForUpdate(ctx context.Context, id int64) (*domain.Submission, error)
	FindSubmissionByPaymentIDForUpdate(ctx context.Context, paymentID string) (*domain.Submission, error)
	SubmissionsByIDsForUpdate(ctx context.Context, ids []int64) ([]domain.Submission, error)
	SubmissionsByGroupPaymentForUpdate(ctx context.Context, groupPaymentID int64) ([]domain.Submission, error)
	ListSubmissions(ctx context.Context, f domain.SubmissionFilter) ([]domain.Submission, int, error)
	SaveSubmissionState(ctx context.Context, s *domain.Submission) error

	GetAnswers(ctx context.Context, submissionID int64) ([]domain.Answer, error)
	SetAnswerInvalid(ctx context.Context, submissionID, fieldID int64, reason string) error
	// UpdateAnswerValue stores a corrected value and clears invalid_reason.
	UpdateAnswerValue(ctx context.Context, submissionID, fieldID int64, value string) error
}

// ChargeRepo keeps every gateway charge ever issued. The payment-id
// lookups on ListRepo and SubmissionRepo also match ids recorded here.
type ChargeRepo interface {
	// RecordCharge inserts c; an already recorded payment id is left as is.
	RecordCharge(ctx context.Context, c *domain.IssuedCharge) error
	GetCharge(ctx context.Context, paymentID string) (*domain.IssuedCharge, error)
}

// HistoryRepo is the append-only status timeline.
type HistoryRepo interface {
	AppendHistory(ctx context.Context, h domain.StatusHistory) error
	ListHistory(ctx context.Context, kind domain.EntityKind, id int64) ([]domain.StatusHistory, error)
}

// AppLogRepo persists audit entries.
type AppLogRepo interface {
	InsertAppLog(ctx context.Context, entry *domain.AppLog) error
}

// DashboardRepo computes scoped aggregates.
type DashboardRepo interface {
	CountByStatus(ctx context.Context, kind domain.PayableKind, scope domain.Scope) ([]domain.StatusCount, error)
	RevenueByMonth(ctx context.Context, kind domain.PayableKind, scope domain.Scope, year int) ([]domain.MonthlyRevenue, error)
}
