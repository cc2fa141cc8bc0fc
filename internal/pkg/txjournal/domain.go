// Package txjournal defines an append-only audit trail of transaction
// submissions.
//
// Every state-changing ledger call is journaled before it is sent and again
// once its outcome is known. When a client sees an ambiguous failure (for
// example a timeout after submission) an operator can look up the
// submission and its transaction hash before anyone retries. The journal is
// write-only from the gateway's point of view: request handling never reads
// it back.
package txjournal

import "time"

// Status represents the lifecycle state of a submission.
type Status string

const (
	StatusSubmitting Status = "SUBMITTING"
	StatusSubmitted  Status = "SUBMITTED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusReverted   Status = "REVERTED"
	StatusFailed     Status = "FAILED"
)

// Entry is a single row in the tx_journal table.
type Entry struct {
	// SubmissionID identifies one submission attempt across its rows.
	SubmissionID string

	Status Status

	// Method is the contract method being invoked.
	Method string

	From  string
	Value string
	Gas   uint64

	// TxHash is empty until the node has accepted the transaction.
	TxHash string

	// Error carries the failure or revert reason for FAILED and REVERTED rows.
	Error string

	RequestID string

	// TraceID and SpanID link the row to the distributed trace of the request.
	TraceID string
	SpanID  string

	UpdatedAt time.Time
}
