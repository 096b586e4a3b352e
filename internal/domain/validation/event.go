// Package validation models the append-only review event record.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/platform/id"
)

// ActorType identifies who drove a validation event.
type ActorType string

const (
	// ActorTypeReviewer indicates a human reviewer drove the transition.
	ActorTypeReviewer ActorType = "reviewer"
	// ActorTypeSystem indicates the engine drove the transition, e.g. by
	// propagation or divergence policy.
	ActorTypeSystem ActorType = "system"
)

// Event records one validation status transition. Append-only.
type Event struct {
	ID       string
	EntityID string
	Status   entity.Status
	// Timestamp is when the transition was committed.
	Timestamp time.Time
	ActorType ActorType
	// ReviewerID is empty for system-driven events.
	ReviewerID      string
	Comments        string
	ConfidenceScore float64
	// ChangesRequested lists the concrete revisions a reviewer asked for.
	ChangesRequested []string
	// SourceIDs are the sources behind the assertion heads reviewed.
	SourceIDs []string
	// PropagatedFrom is the parent entity id for cascade events.
	PropagatedFrom string
}

// Input describes a validation event before identifiers are assigned.
type Input struct {
	EntityID         string
	Status           entity.Status
	ActorType        ActorType
	ReviewerID       string
	Comments         string
	ConfidenceScore  float64
	ChangesRequested []string
	SourceIDs        []string
	PropagatedFrom   string
}

// New builds a validation event with a generated id and timestamp.
func New(input Input, now func() time.Time, idGenerator func() (string, error)) (Event, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.EntityID = strings.TrimSpace(input.EntityID)
	if input.EntityID == "" {
		return Event{}, fmt.Errorf("entity id is required")
	}
	if input.Status == entity.StatusUnspecified {
		return Event{}, fmt.Errorf("status is required")
	}
	if input.ActorType == "" {
		input.ActorType = ActorTypeReviewer
	}
	if input.ConfidenceScore < 0 || input.ConfidenceScore > 1 {
		return Event{}, fmt.Errorf("confidence score must be between 0 and 1")
	}

	eventID, err := idGenerator()
	if err != nil {
		return Event{}, fmt.Errorf("generate validation event id: %w", err)
	}

	return Event{
		ID:               eventID,
		EntityID:         input.EntityID,
		Status:           input.Status,
		Timestamp:        now().UTC(),
		ActorType:        input.ActorType,
		ReviewerID:       strings.TrimSpace(input.ReviewerID),
		Comments:         strings.TrimSpace(input.Comments),
		ConfidenceScore:  input.ConfidenceScore,
		ChangesRequested: input.ChangesRequested,
		SourceIDs:        input.SourceIDs,
		PropagatedFrom:   strings.TrimSpace(input.PropagatedFrom),
	}, nil
}

// Approved reports whether the event records an approval outcome.
func (e Event) Approved() bool {
	return e.Status == entity.StatusApproved
}

// Rejection reports whether the event records a rejecting outcome.
func (e Event) Rejection() bool {
	return e.Status == entity.StatusRejected || e.Status == entity.StatusNeedsRevision
}
