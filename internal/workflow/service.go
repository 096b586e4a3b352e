// Package workflow drives entity validation status transitions and the
// parent-to-child propagation that follows review outcomes.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	otelattr "go.opentelemetry.io/otel/attribute"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/domain/source"
	"github.com/vitalyst/provenance/internal/domain/validation"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/platform/id"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/telemetry"
)

var tracer = otel.Tracer("vitalyst.provenance/workflow")

const (
	transitionAttempts = 3
	retryBackoff       = 25 * time.Millisecond
)

// Store is the datastore surface the state machine needs.
type Store interface {
	GetEntity(ctx context.Context, id string) (entity.Entity, error)
	UpdateEntityStatus(ctx context.Context, e entity.Entity, expectedVersion int64) error
	ListChildren(ctx context.Context, parentID string) ([]entity.Entity, error)
	ListAttributes(ctx context.Context, entityID string) ([]string, error)
	ListHeads(ctx context.Context, entityID, attribute string) ([]assertion.Assertion, error)
	AppendValidationEvent(ctx context.Context, e validation.Event) error
}

// ScoreRefresher recomputes one source's reliability metrics. The
// reliability service implements it.
type ScoreRefresher interface {
	Refresh(ctx context.Context, sourceID string) (source.Metrics, error)
}

// TransitionInput describes one requested status transition.
type TransitionInput struct {
	EntityID         string
	Target           entity.Status
	ActorType        validation.ActorType
	ReviewerID       string
	Comments         string
	ConfidenceScore  float64
	ChangesRequested []string
}

// Outcome reports a committed transition.
type Outcome struct {
	Entity entity.Entity
	Event  validation.Event
	// PropagatedTo lists the direct children whose status was cascaded.
	PropagatedTo []string
}

// Service is the validation state machine.
type Service struct {
	store       Store
	emitter     *telemetry.Emitter
	scorer      ScoreRefresher
	clock       func() time.Time
	idGenerator func() (string, error)
	sleep       func(time.Duration)
}

// NewService creates a workflow service. The scorer may be nil.
func NewService(store Store, emitter *telemetry.Emitter, scorer ScoreRefresher) *Service {
	return &Service{
		store:       store,
		emitter:     emitter,
		scorer:      scorer,
		clock:       time.Now,
		idGenerator: id.NewID,
		sleep:       time.Sleep,
	}
}

// Transition moves an entity to the target status. The write is
// conditional on the entity version; losers of a concurrent race re-read
// and retry, while illegal transitions fail immediately. Statuses that
// propagate cascade to direct children after the parent commit; child
// failures surface as a partial-failure error without rolling the parent
// back.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "workflow.transition")
	defer span.End()
	span.SetAttributes(
		otelattr.String("entity.id", input.EntityID),
		otelattr.String("target", input.Target.Label()),
	)

	updated, err := s.commitTransition(ctx, input.EntityID, func(e entity.Entity) (entity.Entity, error) {
		return entity.Transition(e, input.Target, s.clock)
	})
	if err != nil {
		s.emitter.Failure(ctx, "workflow.transition", input.EntityID, "", err)
		return Outcome{}, err
	}

	sourceIDs, err := s.entitySources(ctx, input.EntityID)
	if err != nil {
		return Outcome{}, err
	}

	// From here the status change is committed. Later failures surface as
	// errors but no longer abort the cascade or the score refresh, so the
	// stored state stays internally consistent.
	event, eventErr := s.appendEvent(ctx, validation.Input{
		EntityID:         input.EntityID,
		Status:           input.Target,
		ActorType:        input.ActorType,
		ReviewerID:       input.ReviewerID,
		Comments:         input.Comments,
		ConfidenceScore:  input.ConfidenceScore,
		ChangesRequested: input.ChangesRequested,
		SourceIDs:        sourceIDs,
	})
	if eventErr != nil {
		s.emitter.Failure(ctx, "workflow.transition", input.EntityID, "", eventErr)
	}

	outcome := Outcome{Entity: updated, Event: event}

	if input.Target.Propagates() {
		propagated, propErr := s.propagate(ctx, updated, input.Target, input.ReviewerID)
		outcome.PropagatedTo = propagated
		if propErr != nil {
			s.emitter.Failure(ctx, "workflow.propagate", input.EntityID, "", propErr)
			s.refreshScores(ctx, sourceIDs)
			return outcome, propErr
		}
	}

	s.refreshScores(ctx, sourceIDs)
	if eventErr != nil {
		return outcome, fmt.Errorf("record validation event for %s: %w", input.EntityID, eventErr)
	}
	s.emitter.Success(ctx, "workflow.transition", input.EntityID, "")
	return outcome, nil
}

// FlagDivergence sends an approved entity back for revision after a
// cross-reference divergence finding. This is the one system override of
// the reviewer transition table; it is reachable only through the
// divergence policy flag.
func (s *Service) FlagDivergence(ctx context.Context, entityID, reason string) error {
	updated, err := s.commitTransition(ctx, entityID, func(e entity.Entity) (entity.Entity, error) {
		if e.Status != entity.StatusApproved {
			return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeEntityInvalidStatusTransition,
				"divergence flagging applies to approved entities only",
				map[string]string{"entity_id": e.ID, "status": e.Status.Label()})
		}
		flagged := e
		flagged.Status = entity.StatusNeedsRevision
		flagged.Version = e.Version + 1
		flagged.UpdatedAt = s.clock().UTC()
		return flagged, nil
	})
	if err != nil {
		s.emitter.Failure(ctx, "workflow.flag_divergence", entityID, "", err)
		return err
	}

	if _, err := s.appendEvent(ctx, validation.Input{
		EntityID:  entityID,
		Status:    updated.Status,
		ActorType: validation.ActorTypeSystem,
		Comments:  reason,
	}); err != nil {
		return err
	}
	s.emitter.Success(ctx, "workflow.flag_divergence", entityID, "")
	return nil
}

// commitTransition runs the read-mutate-write cycle under the version
// CAS. Only version conflicts are retried.
func (s *Service) commitTransition(ctx context.Context, entityID string, mutate func(entity.Entity) (entity.Entity, error)) (entity.Entity, error) {
	var lastErr error
	for attempt := 1; attempt <= transitionAttempts; attempt++ {
		e, err := s.store.GetEntity(ctx, entityID)
		if err != nil {
			return entity.Entity{}, fmt.Errorf("load entity %s: %w", entityID, err)
		}
		next, err := mutate(e)
		if err != nil {
			return entity.Entity{}, err
		}
		err = s.store.UpdateEntityStatus(ctx, next, e.Version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return entity.Entity{}, err
		}
		lastErr = err
		if attempt < transitionAttempts {
			s.sleep(time.Duration(attempt) * retryBackoff)
		}
	}
	return entity.Entity{}, apperrors.Wrap(apperrors.CodeConcurrencyConflict,
		"entity version kept moving; transition attempts exhausted", lastErr)
}

// propagate cascades the parent's new status to its direct children.
// Each child runs in its own goroutine with its own CAS; children already
// at the target are skipped, which makes re-running idempotent.
func (s *Service) propagate(ctx context.Context, parent entity.Entity, target entity.Status, reviewerID string) ([]string, error) {
	children, err := s.store.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parent.ID, err)
	}
	if len(children) == 0 {
		return nil, nil
	}

	var (
		mu         sync.Mutex
		propagated []string
		failed     []string
	)
	var wg sync.WaitGroup
	for _, child := range children {
		wg.Add(1)
		go func(childID string) {
			defer wg.Done()
			changed, err := s.propagateChild(ctx, childID, parent.ID, target, reviewerID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("workflow: propagate %s to child %s: %v", target.Label(), childID, err)
				failed = append(failed, childID)
				return
			}
			if changed {
				propagated = append(propagated, childID)
			}
		}(child.ID)
	}
	wg.Wait()

	sort.Strings(propagated)
	if len(failed) > 0 {
		sort.Strings(failed)
		return propagated, apperrors.WithMetadata(apperrors.CodePropagationPartialFailure,
			"status propagation failed for some children",
			map[string]string{
				"parent_id":        parent.ID,
				"failed_child_ids": strings.Join(failed, ","),
			})
	}
	return propagated, nil
}

// errAlreadyAtTarget aborts the CAS cycle for children that need no write.
var errAlreadyAtTarget = errors.New("child already at target status")

func (s *Service) propagateChild(ctx context.Context, childID, parentID string, target entity.Status, reviewerID string) (bool, error) {
	_, err := s.commitTransition(ctx, childID, func(e entity.Entity) (entity.Entity, error) {
		next, didChange, err := entity.Propagate(e, target, parentID, reviewerID, s.clock)
		if err != nil {
			return entity.Entity{}, err
		}
		if !didChange {
			return entity.Entity{}, errAlreadyAtTarget
		}
		return next, nil
	})
	if errors.Is(err, errAlreadyAtTarget) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = s.appendEvent(ctx, validation.Input{
		EntityID:       childID,
		Status:         target,
		ActorType:      validation.ActorTypeSystem,
		ReviewerID:     reviewerID,
		PropagatedFrom: parentID,
	})
	return true, err
}

func (s *Service) appendEvent(ctx context.Context, input validation.Input) (validation.Event, error) {
	event, err := validation.New(input, s.clock, s.idGenerator)
	if err != nil {
		return validation.Event{}, err
	}
	if err := s.store.AppendValidationEvent(ctx, event); err != nil {
		return validation.Event{}, fmt.Errorf("append validation event: %w", err)
	}
	return event, nil
}

// entitySources collects the distinct sources behind the entity's current
// assertion heads.
func (s *Service) entitySources(ctx context.Context, entityID string) ([]string, error) {
	attributes, err := s.store.ListAttributes(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	seen := make(map[string]bool)
	var sourceIDs []string
	for _, attr := range attributes {
		heads, err := s.store.ListHeads(ctx, entityID, attr)
		if err != nil {
			return nil, fmt.Errorf("list heads for %s: %w", attr, err)
		}
		for _, head := range heads {
			if !seen[head.SourceID] {
				seen[head.SourceID] = true
				sourceIDs = append(sourceIDs, head.SourceID)
			}
		}
	}
	sort.Strings(sourceIDs)
	return sourceIDs, nil
}

// refreshScores retriggers the scorer for the affected sources.
// Scoring failures never fail the transition that triggered them.
func (s *Service) refreshScores(ctx context.Context, sourceIDs []string) {
	if s.scorer == nil {
		return
	}
	for _, sourceID := range sourceIDs {
		if _, err := s.scorer.Refresh(ctx, sourceID); err != nil {
			log.Printf("workflow: refresh reliability for source %s: %v", sourceID, err)
		}
	}
}
