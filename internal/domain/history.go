package domain

import (
	"encoding/json"
	"time"
)

// EntityKind tags which foreign key a StatusHistory row carries.
type EntityKind string

const (
	KindList       EntityKind = "list"
	KindListGroup  EntityKind = "list_group"
	KindSubmission EntityKind = "submission"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	return k == KindList || k == KindListGroup || k == KindSubmission
}

// StatusHistory is one append-only timeline entry.
// Exactly one of ListID, ListGroupID, SubmissionID is set.
type StatusHistory struct {
	ID           int64     `json:"id"`
	ListID       *int64    `json:"list_id,omitempty"`
	ListGroupID  *int64    `json:"list_group_id,omitempty"`
	SubmissionID *int64    `json:"submission_id,omitempty"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewStatusHistory builds a history row tagged to the right foreign key.
func NewStatusHistory(kind EntityKind, id int64, status string, at time.Time) StatusHistory {
	h := StatusHistory{Status: status, UpdatedAt: at}
	switch kind {
	case KindList:
		h.ListID = &id
	case KindListGroup:
		h.ListGroupID = &id
	case KindSubmission:
		h.SubmissionID = &id
	}
	return h
}

// Kind reports which foreign key the row carries and whether exactly one is set.
func (h StatusHistory) Kind() (EntityKind, bool) {
	var kind EntityKind
	n := 0
	if h.ListID != nil {
		kind, n = KindList, n+1
	}
	if h.ListGroupID != nil {
		kind, n = KindListGroup, n+1
	}
	if h.SubmissionID != nil {
		kind, n = KindSubmission, n+1
	}
	return kind, n == 1
}

// LogLevel of an AppLog row.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// AppLog is a persisted audit entry. Writes are best-effort.
type AppLog struct {
	ID          int64           `json:"id"`
	Level       LogLevel        `json:"level"`
	Message     string          `json:"message"`
	Context     string          `json:"context"`
	ClientID    *int64          `json:"client_id,omitempty"`
	ListID      *int64          `json:"list_id,omitempty"`
	ListGroupID *int64          `json:"list_group_id,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
