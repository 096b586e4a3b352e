// Package queue manages review assignments and reviewer work queues.
package queue

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/domain/review"
	"github.com/vitalyst/provenance/internal/domain/validation"
	"github.com/vitalyst/provenance/internal/platform/id"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/telemetry"
	"github.com/vitalyst/provenance/internal/workflow"
)

var tracer = otel.Tracer("vitalyst.provenance/queue")

// Store is the datastore surface the queue needs.
type Store interface {
	PutAssignment(ctx context.Context, a review.Assignment) error
	GetAssignment(ctx context.Context, id string) (review.Assignment, error)
	ListPendingAssignments(ctx context.Context, reviewerID string, pageSize int, pageToken string) (storage.AssignmentPage, error)
}

// Transitioner drives entity status transitions. The workflow service
// implements it.
type Transitioner interface {
	Transition(ctx context.Context, input workflow.TransitionInput) (workflow.Outcome, error)
}

// AssignInput describes a new review assignment.
type AssignInput struct {
	EntityID   string
	ReviewerID string
	DueDate    *time.Time
	Priority   review.Priority
}

// Service manages the review queue.
type Service struct {
	store       Store
	transitions Transitioner
	emitter     *telemetry.Emitter
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService creates a review queue service.
func NewService(store Store, transitions Transitioner, emitter *telemetry.Emitter) *Service {
	return &Service{
		store:       store,
		transitions: transitions,
		emitter:     emitter,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// Assign creates a pending assignment and moves the entity into review.
// The entity must be in PENDING_REVIEW; anything else fails the
// transition and no assignment is stored.
func (s *Service) Assign(ctx context.Context, input AssignInput) (review.Assignment, error) {
	ctx, span := tracer.Start(ctx, "queue.assign")
	defer span.End()

	a, err := review.Create(review.CreateInput{
		EntityID:   input.EntityID,
		ReviewerID: input.ReviewerID,
		DueDate:    input.DueDate,
		Priority:   input.Priority,
	}, s.clock, s.idGenerator)
	if err != nil {
		return review.Assignment{}, err
	}

	if _, err := s.transitions.Transition(ctx, workflow.TransitionInput{
		EntityID:   a.EntityID,
		Target:     entity.StatusInReview,
		ActorType:  validation.ActorTypeReviewer,
		ReviewerID: a.ReviewerID,
	}); err != nil {
		return review.Assignment{}, fmt.Errorf("move entity %s into review: %w", a.EntityID, err)
	}

	if err := s.store.PutAssignment(ctx, a); err != nil {
		s.emitter.Failure(ctx, "queue.assign", a.EntityID, "", err)
		return review.Assignment{}, fmt.Errorf("store assignment: %w", err)
	}

	s.emitter.NotifyAssignment(ctx, a)
	s.emitter.Success(ctx, "queue.assign", a.EntityID, "")
	return a, nil
}

// Queue returns a page of the reviewer's pending assignments, highest
// priority first, oldest first within a priority.
func (s *Service) Queue(ctx context.Context, reviewerID string, pageSize int, pageToken string) (storage.AssignmentPage, error) {
	return s.store.ListPendingAssignments(ctx, reviewerID, pageSize, pageToken)
}

// Complete marks an assignment done. It never changes entity status;
// the review outcome goes through the state machine separately.
func (s *Service) Complete(ctx context.Context, assignmentID string) (review.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return review.Assignment{}, fmt.Errorf("load assignment %s: %w", assignmentID, err)
	}
	completed, err := review.Complete(a, s.clock)
	if err != nil {
		return review.Assignment{}, err
	}
	if err := s.store.PutAssignment(ctx, completed); err != nil {
		return review.Assignment{}, fmt.Errorf("store assignment: %w", err)
	}
	s.emitter.Success(ctx, "queue.complete", completed.EntityID, "")
	return completed, nil
}
