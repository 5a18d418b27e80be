package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

const auditTimeout = 2 * time.Second

// Audit is the AppLog sink. Writes are best-effort: a failure is logged
// and never reaches the operation that triggered it.
type Audit struct {
	repo   port.AppLogRepo
	logger *zap.Logger
}

var _ port.AuditSink = (*Audit)(nil)

// NewAudit creates an audit sink writing through repo.
func NewAudit(repo port.AppLogRepo, logger *zap.Logger) *Audit {
	return &Audit{repo: repo, logger: logger}
}

// Record persists entry. The request context may already be cancelled
// by the time the entry is written, so only its values are kept.
func (a *Audit) Record(ctx context.Context, entry domain.AppLog) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	if entry.Level == "" {
		entry.Level = domain.LogInfo
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := a.repo.InsertAppLog(ctx, &entry); err != nil {
		a.logger.Warn("audit: failed to persist app log",
			zap.String("context", entry.Context),
			zap.String("message", entry.Message),
			zap.Error(err),
		)
	}
}
