// Package ledger appends provenance assertions and serves lineage reads.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/domain/source"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/platform/id"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/telemetry"
)

const (
	// appendAttempts bounds the optimistic retry loop on head conflicts.
	appendAttempts = 3
	retryBackoff   = 25 * time.Millisecond
	lineagePage    = 100
)

var tracer = otel.Tracer("vitalyst.provenance/ledger")

// Store is the datastore surface the ledger needs.
type Store interface {
	GetEntity(ctx context.Context, id string) (entity.Entity, error)
	GetSource(ctx context.Context, id string) (source.Source, error)
	AppendAssertion(ctx context.Context, a assertion.Assertion, expectedHeadID string) error
	GetAssertion(ctx context.Context, id string) (assertion.Assertion, error)
	GetHead(ctx context.Context, entityID, attribute string) (assertion.Assertion, error)
	ListLineage(ctx context.Context, entityID, attribute string, pageSize int, pageToken string) (storage.AssertionPage, error)
	ListHeads(ctx context.Context, entityID, attribute string) ([]assertion.Assertion, error)
	ListAttributes(ctx context.Context, entityID string) ([]string, error)
}

// Service coordinates assertion appends against the lineage head.
type Service struct {
	store       Store
	emitter     *telemetry.Emitter
	clock       func() time.Time
	idGenerator func() (string, error)
	sleep       func(time.Duration)
}

// NewService creates a ledger service.
func NewService(store Store, emitter *telemetry.Emitter) *Service {
	return &Service{
		store:       store,
		emitter:     emitter,
		clock:       time.Now,
		idGenerator: id.NewID,
		sleep:       time.Sleep,
	}
}

// AssertValue appends a new assertion to the (entity, attribute) lineage.
// Concurrent writers race on the head; the loser re-reads the head and
// retries so that exactly one chain survives.
func (s *Service) AssertValue(ctx context.Context, input assertion.Input) (assertion.Assertion, error) {
	ctx, span := tracer.Start(ctx, "ledger.assert")
	defer span.End()

	input, err := assertion.Normalize(input)
	if err != nil {
		return assertion.Assertion{}, err
	}
	span.SetAttributes(
		attribute.String("entity.id", input.EntityID),
		attribute.String("attribute", input.Attribute),
	)

	e, err := s.store.GetEntity(ctx, input.EntityID)
	if err != nil {
		return assertion.Assertion{}, fmt.Errorf("load entity %s: %w", input.EntityID, err)
	}
	if e.Status == entity.StatusArchived {
		err := apperrors.WithMetadata(apperrors.CodeEntityArchived,
			"cannot assert values on an archived entity",
			map[string]string{"entity_id": e.ID})
		s.emitter.Failure(ctx, "ledger.assert", input.EntityID, input.SourceID, err)
		return assertion.Assertion{}, err
	}
	if _, err := s.store.GetSource(ctx, input.SourceID); err != nil {
		return assertion.Assertion{}, fmt.Errorf("load source %s: %w", input.SourceID, err)
	}

	var lastErr error
	for attempt := 1; attempt <= appendAttempts; attempt++ {
		previousID := ""
		head, err := s.store.GetHead(ctx, input.EntityID, input.Attribute)
		switch {
		case err == nil:
			previousID = head.ID
		case errors.Is(err, storage.ErrNotFound):
		default:
			return assertion.Assertion{}, fmt.Errorf("load lineage head: %w", err)
		}

		a, err := assertion.New(input, previousID, s.clock, s.idGenerator)
		if err != nil {
			return assertion.Assertion{}, err
		}

		err = s.store.AppendAssertion(ctx, a, previousID)
		if err == nil {
			s.emitter.Success(ctx, "ledger.assert", a.EntityID, a.SourceID)
			return a, nil
		}
		if !errors.Is(err, storage.ErrHeadConflict) {
			s.emitter.Failure(ctx, "ledger.assert", input.EntityID, input.SourceID, err)
			return assertion.Assertion{}, err
		}
		lastErr = err
		if attempt < appendAttempts {
			s.sleep(time.Duration(attempt) * retryBackoff)
		}
	}

	err = apperrors.Wrap(apperrors.CodeConcurrencyConflict,
		"lineage head kept moving; append attempts exhausted", lastErr)
	s.emitter.Failure(ctx, "ledger.assert", input.EntityID, input.SourceID, err)
	return assertion.Assertion{}, err
}

// Head returns the current assertion for (entity, attribute).
func (s *Service) Head(ctx context.Context, entityID, attribute string) (assertion.Assertion, error) {
	return s.store.GetHead(ctx, entityID, attribute)
}

// Lineage returns a page of the assertion chain, newest first. The page
// token resumes the walk from where the previous page stopped.
func (s *Service) Lineage(ctx context.Context, entityID, attribute string, pageSize int, pageToken string) (storage.AssertionPage, error) {
	return s.store.ListLineage(ctx, entityID, attribute, pageSize, pageToken)
}

// Attributes returns every attribute asserted for an entity.
func (s *Service) Attributes(ctx context.Context, entityID string) ([]string, error) {
	return s.store.ListAttributes(ctx, entityID)
}

// Heads returns the newest assertion per contributing source.
func (s *Service) Heads(ctx context.Context, entityID, attribute string) ([]assertion.Assertion, error) {
	return s.store.ListHeads(ctx, entityID, attribute)
}

// AttributeAt returns the assertion in force at the given instant. For
// relationship attributes that is the version whose validity window
// covers t; for scalar attributes the newest assertion at or before t.
func (s *Service) AttributeAt(ctx context.Context, entityID, attribute string, at time.Time) (assertion.Assertion, error) {
	pageToken := ""
	for {
		page, err := s.store.ListLineage(ctx, entityID, attribute, lineagePage, pageToken)
		if err != nil {
			return assertion.Assertion{}, err
		}
		for _, a := range page.Assertions {
			if a.InForceAt(at) {
				return a, nil
			}
		}
		if page.NextPageToken == "" {
			return assertion.Assertion{}, storage.ErrNotFound
		}
		pageToken = page.NextPageToken
	}
}

// CheckLineage walks the full chain for (entity, attribute) and reports
// invariant violations as human-readable findings. An empty slice means
// the chain is sound.
func (s *Service) CheckLineage(ctx context.Context, entityID, attribute string) ([]string, error) {
	var findings []string
	var newer *assertion.Assertion

	pageToken := ""
	for {
		page, err := s.store.ListLineage(ctx, entityID, attribute, lineagePage, pageToken)
		if err != nil {
			return nil, err
		}
		for i := range page.Assertions {
			a := page.Assertions[i]
			if newer != nil {
				if newer.PreviousID != a.ID {
					findings = append(findings, fmt.Sprintf("assertion %s does not link back to %s", newer.ID, a.ID))
				}
				if newer.AssertedAt.Before(a.AssertedAt) {
					findings = append(findings, fmt.Sprintf("assertion %s predates its predecessor %s", newer.ID, a.ID))
				}
				if a.IsRelationship() && newer.IsRelationship() && a.ValidTo == nil {
					findings = append(findings, fmt.Sprintf("relationship version %s was never closed", a.ID))
				}
			}
			newer = &page.Assertions[i]
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if newer != nil && newer.PreviousID != "" {
		if _, err := s.store.GetAssertion(ctx, newer.PreviousID); errors.Is(err, storage.ErrNotFound) {
			findings = append(findings, fmt.Sprintf("assertion %s links to missing predecessor %s", newer.ID, newer.PreviousID))
		} else if err != nil {
			return nil, err
		}
	}
	return findings, nil
}
