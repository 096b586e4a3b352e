// Package storage defines the datastore capability surface of the engine.
//
// The interfaces are deliberately narrow and typed: no query syntax leaks
// into the contracts, and every implementation (in-memory fake, SQLite)
// provides the same conditional-write semantics for the two contended
// records: lineage heads and entity status.
package storage

import (
	"context"
	"time"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	"github.com/vitalyst/provenance/internal/domain/crossref"
	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/domain/review"
	"github.com/vitalyst/provenance/internal/domain/source"
	"github.com/vitalyst/provenance/internal/domain/validation"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such record"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrHeadConflict indicates a conditional lineage append lost a race: the
// head moved between the caller's read and its write. The caller retries
// the whole append against the new head.
var ErrHeadConflict = apperrors.New(apperrors.CodeConcurrencyConflict, "lineage head changed since read")

// ErrVersionConflict indicates a conditional entity write lost a race on
// the entity version token.
var ErrVersionConflict = apperrors.New(apperrors.CodeConcurrencyConflict, "entity version changed since read")

// ErrUnavailable indicates the datastore timed out or is unreachable.
var ErrUnavailable = apperrors.New(apperrors.CodeStorageUnavailable, "datastore unavailable")

// EntityStore owns entity records, their status versioning, and child-of edges.
type EntityStore interface {
	PutEntity(ctx context.Context, e entity.Entity) error
	GetEntity(ctx context.Context, id string) (entity.Entity, error)
	// UpdateEntityStatus conditionally replaces an entity record. The write
	// succeeds only while the stored version still equals expectedVersion;
	// otherwise ErrVersionConflict.
	UpdateEntityStatus(ctx context.Context, e entity.Entity, expectedVersion int64) error
	// ListChildren returns entities with a child-of edge to parentID.
	// Direct children only; grandchildren are never traversed.
	ListChildren(ctx context.Context, parentID string) ([]entity.Entity, error)
	// ListEntities returns a page of entities ordered by id.
	ListEntities(ctx context.Context, pageSize int, pageToken string) (EntityPage, error)
}

// EntityPage describes a page of entity records.
type EntityPage struct {
	Entities      []entity.Entity
	NextPageToken string
}

// AssertionStore owns the append-only lineage chains.
type AssertionStore interface {
	// AppendAssertion appends a new assertion conditioned on the current
	// head for (entity, attribute) still being expectedHeadID (empty for a
	// fresh chain). On mismatch it returns ErrHeadConflict and writes
	// nothing. When the append opens a new relationship version, the
	// previous open version is closed (valid_to = new valid_from) in the
	// same atomic write.
	AppendAssertion(ctx context.Context, a assertion.Assertion, expectedHeadID string) error
	GetAssertion(ctx context.Context, id string) (assertion.Assertion, error)
	// GetHead returns the current head assertion for (entity, attribute).
	GetHead(ctx context.Context, entityID, attribute string) (assertion.Assertion, error)
	// ListLineage returns a newest-first page of the lineage chain.
	ListLineage(ctx context.Context, entityID, attribute string, pageSize int, pageToken string) (AssertionPage, error)
	// ListHeads returns the current head per source for (entity, attribute).
	ListHeads(ctx context.Context, entityID, attribute string) ([]assertion.Assertion, error)
	// ListAttributes returns every attribute name asserted for an entity.
	ListAttributes(ctx context.Context, entityID string) ([]string, error)
}

// AssertionPage describes a page of a lineage walk.
type AssertionPage struct {
	Assertions    []assertion.Assertion
	NextPageToken string
}

// SourceStore owns source records and their metrics snapshots.
type SourceStore interface {
	PutSource(ctx context.Context, s source.Source) error
	GetSource(ctx context.Context, id string) (source.Source, error)
	// ListSources returns a page of sources ordered by id.
	ListSources(ctx context.Context, pageSize int, pageToken string) (SourcePage, error)
	// PutSourceMetrics swaps the metrics snapshot for a source.
	// Last-writer-wins; safe because recomputation is pure and idempotent.
	PutSourceMetrics(ctx context.Context, sourceID string, m source.Metrics) error
}

// SourcePage describes a page of source records.
type SourcePage struct {
	Sources       []source.Source
	NextPageToken string
}

// ValidationEventStore owns the append-only review event record.
type ValidationEventStore interface {
	AppendValidationEvent(ctx context.Context, e validation.Event) error
	// ListValidationEventsByEntity returns events for an entity, newest first.
	ListValidationEventsByEntity(ctx context.Context, entityID string) ([]validation.Event, error)
	// ListValidationEventsBySource returns events whose reviewed assertions
	// trace to the source, newest first.
	ListValidationEventsBySource(ctx context.Context, sourceID string) ([]validation.Event, error)
}

// CrossRefStore owns append-only cross-reference comparison results.
type CrossRefStore interface {
	AppendCrossRefResult(ctx context.Context, r crossref.Result) error
	// ListCrossRefResultsBySource returns results for a candidate source,
	// newest first.
	ListCrossRefResultsBySource(ctx context.Context, sourceID string) ([]crossref.Result, error)
}

// AssignmentStore owns review assignment records and queue ordering.
type AssignmentStore interface {
	PutAssignment(ctx context.Context, a review.Assignment) error
	GetAssignment(ctx context.Context, id string) (review.Assignment, error)
	// ListPendingAssignments returns a page of pending assignments for a
	// reviewer ordered by priority desc, then assigned_at asc.
	ListPendingAssignments(ctx context.Context, reviewerID string, pageSize int, pageToken string) (AssignmentPage, error)
}

// AssignmentPage describes a page of assignments.
type AssignmentPage struct {
	Assignments   []review.Assignment
	NextPageToken string
}

// AuditEvent records an operational occurrence for the audit trail.
type AuditEvent struct {
	Timestamp time.Time
	Severity  string
	// Operation names the engine operation ("ledger.assert", "workflow.transition").
	Operation string
	EntityID  string
	SourceID  string
	// Code is the domain error code for failures, empty for successes.
	Code    string
	Message string
}

// AuditStore owns the append-only operational audit trail.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, e AuditEvent) error
	// ListAuditEvents returns a page of audit events, newest first,
	// optionally narrowed by an implementation-defined filter expression.
	ListAuditEvents(ctx context.Context, filter string, pageSize int, pageToken string) (AuditPage, error)
}

// AuditPage describes a page of audit events.
type AuditPage struct {
	Events        []AuditEvent
	NextPageToken string
}

// Store aggregates every capability the engine services need.
type Store interface {
	EntityStore
	AssertionStore
	SourceStore
	ValidationEventStore
	CrossRefStore
	AssignmentStore
	AuditStore
}
