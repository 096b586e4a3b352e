// Package telemetry records operational audit events and review
// notifications for the provenance engine.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/vitalyst/provenance/internal/domain/review"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/storage"
)

// Severity describes the audit severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Notifier delivers review-facing notifications. Implementations decide
// the channel; delivery failures are logged, never surfaced to callers.
type Notifier interface {
	AssignmentCreated(ctx context.Context, a review.Assignment) error
	ValidationFailed(ctx context.Context, entityID, reason string) error
}

// Emitter records operational audit events.
type Emitter struct {
	store    storage.AuditStore
	notifier Notifier
	clock    func() time.Time
}

// NewEmitter creates a new audit event emitter. The notifier may be nil.
func NewEmitter(store storage.AuditStore, notifier Notifier) *Emitter {
	return &Emitter{store: store, notifier: notifier, clock: time.Now}
}

// Emit records an audit event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, severity Severity, evt storage.AuditEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	evt.Severity = string(severity)
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendAuditEvent(ctx, evt)
}

// Success records an INFO event for a completed operation.
func (e *Emitter) Success(ctx context.Context, operation, entityID, sourceID string) {
	if err := e.Emit(ctx, SeverityInfo, storage.AuditEvent{
		Operation: operation,
		EntityID:  entityID,
		SourceID:  sourceID,
	}); err != nil {
		log.Printf("telemetry: append audit event for %s: %v", operation, err)
	}
}

// Failure records an ERROR event carrying the domain error code.
func (e *Emitter) Failure(ctx context.Context, operation, entityID, sourceID string, cause error) {
	if cause == nil {
		return
	}
	if err := e.Emit(ctx, SeverityError, storage.AuditEvent{
		Operation: operation,
		EntityID:  entityID,
		SourceID:  sourceID,
		Code:      string(apperrors.CodeOf(cause)),
		Message:   cause.Error(),
	}); err != nil {
		log.Printf("telemetry: append audit event for %s: %v", operation, err)
	}
	if e != nil && e.notifier != nil {
		if err := e.notifier.ValidationFailed(ctx, entityID, cause.Error()); err != nil {
			log.Printf("telemetry: notify validation failure for %s: %v", entityID, err)
		}
	}
}

// NotifyAssignment announces a new review assignment.
func (e *Emitter) NotifyAssignment(ctx context.Context, a review.Assignment) {
	if e == nil || e.notifier == nil {
		return
	}
	if err := e.notifier.AssignmentCreated(ctx, a); err != nil {
		log.Printf("telemetry: notify assignment %s: %v", a.ID, err)
	}
}

// LogNotifier is a Notifier that writes to the process log. It is the
// default wiring for command-line runs without a delivery channel.
type LogNotifier struct{}

// AssignmentCreated logs the new assignment.
func (LogNotifier) AssignmentCreated(_ context.Context, a review.Assignment) error {
	log.Printf("review assignment %s: entity %s assigned to %s", a.ID, a.EntityID, a.ReviewerID)
	return nil
}

// ValidationFailed logs the failure.
func (LogNotifier) ValidationFailed(_ context.Context, entityID, reason string) error {
	log.Printf("validation failure for entity %s: %s", entityID, reason)
	return nil
}
