package txjournal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/marketplace-gateway/internal/pkg/requestmeta"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	// TraceID is the W3C trace ID (32 lowercase hex chars).
	// Empty string if no active span is found in the context.
	TraceID string

	// SpanID is the W3C span ID (16 lowercase hex chars).
	SpanID string
}

// ExtractTraceInfo reads the active OpenTelemetry span from ctx and returns
// its trace_id and span_id as hex strings. Both are empty when ctx carries no
// valid span (e.g. in unit tests).
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// Submission tracks one transaction attempt and writes its journal rows.
// A nil repository turns every method into a no-op.
type Submission struct {
	repo  Repository
	entry Entry
}

// Begin starts a submission and records it as SUBMITTING.
func Begin(ctx context.Context, repo Repository, method, from, value string, gas uint64) *Submission {
	ti := ExtractTraceInfo(ctx)
	s := &Submission{
		repo: repo,
		entry: Entry{
			SubmissionID: uuid.NewString(),
			Method:       method,
			From:         from,
			Value:        value,
			Gas:          gas,
			RequestID:    requestmeta.RequestID(ctx),
			TraceID:      ti.TraceID,
			SpanID:       ti.SpanID,
		},
	}
	s.record(ctx, StatusSubmitting, "")
	return s
}

// ID returns the submission identifier.
func (s *Submission) ID() string { return s.entry.SubmissionID }

// Submitted records that the node accepted the transaction.
func (s *Submission) Submitted(ctx context.Context, txHash string) {
	s.entry.TxHash = txHash
	s.record(ctx, StatusSubmitted, "")
}

func (s *Submission) Confirmed(ctx context.Context) { s.record(ctx, StatusConfirmed, "") }

func (s *Submission) Reverted(ctx context.Context, reason string) {
	s.record(ctx, StatusReverted, reason)
}

func (s *Submission) Failed(ctx context.Context, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.record(ctx, StatusFailed, msg)
}

func (s *Submission) record(ctx context.Context, status Status, errMsg string) {
	if s.repo == nil {
		return
	}
	entry := s.entry
	entry.Status = status
	entry.Error = errMsg
	entry.UpdatedAt = time.Now().UTC()
	// The outcome must be journaled even when the request context is done.
	if err := s.repo.Save(context.WithoutCancel(ctx), &entry); err != nil {
		slog.WarnContext(ctx, "tx journal write failed",
			"submission_id", entry.SubmissionID,
			"status", status,
			"error", err,
		)
	}
}
