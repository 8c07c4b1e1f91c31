package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"electra/internal/models"
)

// AuditSink is the append-only store for admin activity entries.
type AuditSink interface {
	Insert(ctx context.Context, activity *models.AdminActivity) error
}

// AuditRecorder writes activity entries off the request's decision path.
// A failed write is logged and swallowed; it never fails the operation
// that produced it.
type AuditRecorder struct {
	sink   AuditSink
	logger *zap.Logger
}

// NewAuditRecorder builds AuditRecorder.
func NewAuditRecorder(sink AuditSink, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{sink: sink, logger: logger}
}

// Record persists the entry in a detached goroutine. The write survives
// the request context being cancelled.
func (r *AuditRecorder) Record(ctx context.Context, activity models.AdminActivity) {
	if r == nil || r.sink == nil {
		return
	}
	if activity.Severity == "" {
		activity.Severity = models.SeverityLow
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		writeCtx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		if err := r.sink.Insert(writeCtx, &activity); err != nil {
			r.logger.Warn("failed to record admin activity",
				zap.String("action", activity.Action),
				zap.String("target_model", activity.TargetModel),
				zap.Int64("target_id", activity.TargetID),
				zap.Error(err),
			)
		}
	}()
}

// snapshot serializes a state for before/after audit fields. Marshal
// failures degrade to an empty snapshot rather than failing the caller.
func snapshot(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
