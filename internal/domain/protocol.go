package domain

import (
	"fmt"
	"time"
)

// Counter kinds held by the protocol_counters table.
const (
	CounterList         = "list"
	CounterSubmission   = "submission"
	CounterGroupPayment = "group_payment"
)

// ProtocolSeqWidth is the zero-padded width of the sequence part, so
// protocols of the same prefix sort lexicographically in creation order.
const ProtocolSeqWidth = 6

// ListProtocol formats a list protocol: YYYYMMDD_HHMMSS-<seq>.
func ListProtocol(now time.Time, seq int64) string {
	return fmt.Sprintf("%s-%0*d", now.Format("20060102_150405"), ProtocolSeqWidth, seq)
}

// SubmissionProtocol formats a submission protocol: YYYYMMDD-<seq>.
func SubmissionProtocol(now time.Time, seq int64) string {
	return fmt.Sprintf("%s-%0*d", now.Format("20060102"), ProtocolSeqWidth, seq)
}
