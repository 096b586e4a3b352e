// Package review models human review assignments and their ordering.
package review

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/platform/id"
)

// Priority orders assignments within a reviewer queue.
type Priority int

const (
	// PriorityUnspecified represents an invalid priority value.
	PriorityUnspecified Priority = iota
	// PriorityLow indicates background work.
	PriorityLow
	// PriorityNormal is the default priority.
	PriorityNormal
	// PriorityHigh indicates time-sensitive review work.
	PriorityHigh
	// PriorityUrgent indicates work that blocks publication.
	PriorityUrgent
)

// Status describes the lifecycle of an assignment.
type Status int

const (
	// StatusUnspecified represents an invalid assignment status.
	StatusUnspecified Status = iota
	// StatusPending indicates the assignment awaits completion.
	StatusPending
	// StatusCompleted indicates the reviewer finished the assignment.
	StatusCompleted
)

var (
	// ErrEmptyEntityID indicates a missing entity id.
	ErrEmptyEntityID = apperrors.New(apperrors.CodeReviewEmptyEntityID, "entity id is required")
	// ErrEmptyReviewerID indicates a missing reviewer id.
	ErrEmptyReviewerID = apperrors.New(apperrors.CodeReviewEmptyReviewerID, "reviewer id is required")
	// ErrAlreadyComplete indicates a completed assignment was completed again.
	ErrAlreadyComplete = apperrors.New(apperrors.CodeReviewAlreadyComplete, "assignment is already completed")
)

// Assignment binds an entity under review to a reviewer.
type Assignment struct {
	ID          string
	EntityID    string
	ReviewerID  string
	AssignedAt  time.Time
	DueDate     *time.Time
	Priority    Priority
	Status      Status
	CompletedAt *time.Time
}

// CreateInput describes a new assignment.
type CreateInput struct {
	EntityID   string
	ReviewerID string
	DueDate    *time.Time
	Priority   Priority
}

// Create builds a pending assignment with a generated id.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Assignment, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.EntityID = strings.TrimSpace(input.EntityID)
	if input.EntityID == "" {
		return Assignment{}, ErrEmptyEntityID
	}
	input.ReviewerID = strings.TrimSpace(input.ReviewerID)
	if input.ReviewerID == "" {
		return Assignment{}, ErrEmptyReviewerID
	}
	if input.Priority == PriorityUnspecified {
		input.Priority = PriorityNormal
	}

	assignmentID, err := idGenerator()
	if err != nil {
		return Assignment{}, fmt.Errorf("generate assignment id: %w", err)
	}

	a := Assignment{
		ID:         assignmentID,
		EntityID:   input.EntityID,
		ReviewerID: input.ReviewerID,
		AssignedAt: now().UTC(),
		Priority:   input.Priority,
		Status:     StatusPending,
	}
	if input.DueDate != nil {
		due := input.DueDate.UTC()
		a.DueDate = &due
	}
	return a, nil
}

// Complete marks an assignment completed. Completing twice fails.
func Complete(a Assignment, now func() time.Time) (Assignment, error) {
	if now == nil {
		now = time.Now
	}
	if a.Status == StatusCompleted {
		return Assignment{}, ErrAlreadyComplete
	}
	completed := a
	completed.Status = StatusCompleted
	completedAt := now().UTC()
	completed.CompletedAt = &completedAt
	return completed, nil
}

// Before reports queue ordering: priority desc, then assigned_at asc.
func (a Assignment) Before(other Assignment) bool {
	if a.Priority != other.Priority {
		return a.Priority > other.Priority
	}
	return a.AssignedAt.Before(other.AssignedAt)
}

// Label returns a stable label for a priority.
func (p Priority) Label() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityUrgent:
		return "URGENT"
	default:
		return "UNSPECIFIED"
	}
}

// PriorityFromLabel parses a string label into a Priority.
func PriorityFromLabel(value string) (Priority, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return PriorityUnspecified, fmt.Errorf("priority is required")
	}
	switch strings.ToUpper(trimmed) {
	case "LOW", "PRIORITY_LOW":
		return PriorityLow, nil
	case "NORMAL", "PRIORITY_NORMAL":
		return PriorityNormal, nil
	case "HIGH", "PRIORITY_HIGH":
		return PriorityHigh, nil
	case "URGENT", "PRIORITY_URGENT":
		return PriorityUrgent, nil
	default:
		return PriorityUnspecified, fmt.Errorf("unknown priority: %s", trimmed)
	}
}

// Label returns a stable label for an assignment status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return "UNSPECIFIED"
	}
}

// StatusFromLabel parses a string label into a Status.
func StatusFromLabel(value string) (Status, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return StatusUnspecified, fmt.Errorf("assignment status is required")
	}
	switch strings.ToUpper(trimmed) {
	case "PENDING", "ASSIGNMENT_STATUS_PENDING":
		return StatusPending, nil
	case "COMPLETED", "ASSIGNMENT_STATUS_COMPLETED":
		return StatusCompleted, nil
	default:
		return StatusUnspecified, fmt.Errorf("unknown assignment status: %s", trimmed)
	}
}
