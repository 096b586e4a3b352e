package entity

import (
	"fmt"
	"strings"
)

// Status describes the validation lifecycle of an entity.
type Status int

const (
	// StatusUnspecified represents an invalid validation status value.
	StatusUnspecified Status = iota
	// StatusDraft indicates a freshly ingested entity awaiting submission.
	StatusDraft
	// StatusPendingReview indicates the entity is queued for review.
	StatusPendingReview
	// StatusInReview indicates a reviewer is actively working the entity.
	StatusInReview
	// StatusApproved indicates the entity passed review.
	StatusApproved
	// StatusRejected indicates the entity failed review.
	StatusRejected
	// StatusNeedsRevision indicates the entity needs changes before re-review.
	StatusNeedsRevision
	// StatusArchived indicates the entity is retired. Terminal.
	StatusArchived
)

// Statuses lists every defined validation status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusDraft,
		StatusPendingReview,
		StatusInReview,
		StatusApproved,
		StatusRejected,
		StatusNeedsRevision,
		StatusArchived,
	}
}

// isStatusTransitionAllowed enforces the validation lifecycle table.
func isStatusTransitionAllowed(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusPendingReview
	case StatusPendingReview:
		return to == StatusInReview
	case StatusInReview:
		return to == StatusApproved || to == StatusRejected || to == StatusNeedsRevision
	case StatusNeedsRevision:
		return to == StatusPendingReview
	case StatusApproved, StatusRejected:
		return to == StatusArchived
	default:
		return false
	}
}

// IsStatusTransitionAllowed reports whether a status transition is permitted.
func IsStatusTransitionAllowed(from, to Status) bool {
	return isStatusTransitionAllowed(from, to)
}

// Propagates reports whether reaching this status cascades to direct children.
func (s Status) Propagates() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusArchived
}

// IsTerminal reports whether the status ends the lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusArchived
}

// Label returns a stable label for a validation status.
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "DRAFT"
	case StatusPendingReview:
		return "PENDING_REVIEW"
	case StatusInReview:
		return "IN_REVIEW"
	case StatusApproved:
		return "APPROVED"
	case StatusRejected:
		return "REJECTED"
	case StatusNeedsRevision:
		return "NEEDS_REVISION"
	case StatusArchived:
		return "ARCHIVED"
	default:
		return "UNSPECIFIED"
	}
}

// StatusFromLabel parses a string label into a Status.
// It trims whitespace and matches case-insensitively. Both short
// ("DRAFT") and prefixed ("VALIDATION_STATUS_DRAFT") forms are accepted.
func StatusFromLabel(value string) (Status, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return StatusUnspecified, fmt.Errorf("validation status is required")
	}
	upper := strings.ToUpper(trimmed)
	switch upper {
	case "DRAFT", "VALIDATION_STATUS_DRAFT":
		return StatusDraft, nil
	case "PENDING_REVIEW", "VALIDATION_STATUS_PENDING_REVIEW":
		return StatusPendingReview, nil
	case "IN_REVIEW", "VALIDATION_STATUS_IN_REVIEW":
		return StatusInReview, nil
	case "APPROVED", "VALIDATION_STATUS_APPROVED":
		return StatusApproved, nil
	case "REJECTED", "VALIDATION_STATUS_REJECTED":
		return StatusRejected, nil
	case "NEEDS_REVISION", "VALIDATION_STATUS_NEEDS_REVISION":
		return StatusNeedsRevision, nil
	case "ARCHIVED", "VALIDATION_STATUS_ARCHIVED":
		return StatusArchived, nil
	default:
		return StatusUnspecified, fmt.Errorf("unknown validation status: %s", trimmed)
	}
}
