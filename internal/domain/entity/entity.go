// Package entity models knowledge-graph entities and their review lifecycle.
package entity

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/platform/id"
)

// Kind describes the category of a knowledge-graph entity.
type Kind int

const (
	// KindUnspecified represents an invalid entity kind value.
	KindUnspecified Kind = iota
	// KindFood indicates a food entity.
	KindFood
	// KindNutrient indicates a nutrient entity.
	KindNutrient
	// KindContent indicates an editorial content entity.
	KindContent
)

var (
	// ErrEmptyName indicates a missing entity name.
	ErrEmptyName = apperrors.New(apperrors.CodeEntityNameEmpty, "entity name is required")
	// ErrInvalidKind indicates a missing or invalid entity kind.
	ErrInvalidKind = apperrors.New(apperrors.CodeEntityInvalidKind, "entity kind is required")
	// ErrInvalidStatusTransition indicates a disallowed validation status change.
	ErrInvalidStatusTransition = apperrors.New(apperrors.CodeEntityInvalidStatusTransition, "validation status transition is not allowed")
)

// Entity represents metadata for a knowledge-graph node under review.
// Attribute values live on assertions in the provenance ledger, not here.
type Entity struct {
	ID   string
	Kind Kind
	Name string
	// Description provides optional free-form editorial notes.
	Description string
	Status      Status
	// Version is the optimistic concurrency token; stores bump it on
	// every conditional status write.
	Version int64
	// ParentIDs lists direct parents via child-of edges.
	ParentIDs []string
	// PropagatedFrom is the parent entity that pushed the current status,
	// empty when the status was set directly.
	PropagatedFrom string
	// PropagatedBy is the reviewer that drove the propagating transition.
	PropagatedBy string
	// PropagatedAt is when the propagated status landed.
	PropagatedAt *time.Time
	// CreatedAt is the timestamp when the entity was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp when entity metadata last changed.
	UpdatedAt time.Time
	// ArchivedAt is the timestamp when the entity was archived.
	ArchivedAt *time.Time
}

// CreateInput describes the metadata needed to create an entity.
type CreateInput struct {
	Kind        Kind
	Name        string
	Description string
	ParentIDs   []string
}

// Create creates a new entity in DRAFT with a generated ID and timestamps.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Entity, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateInput(input)
	if err != nil {
		return Entity{}, err
	}

	entityID, err := idGenerator()
	if err != nil {
		return Entity{}, fmt.Errorf("generate entity id: %w", err)
	}

	createdAt := now().UTC()
	return Entity{
		ID:          entityID,
		Kind:        normalized.Kind,
		Name:        normalized.Name,
		Description: normalized.Description,
		Status:      StatusDraft,
		Version:     1,
		ParentIDs:   normalized.ParentIDs,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// Transition applies a validation status change and updates timestamps.
// The entity version is bumped so conditional store writes can detect races.
func Transition(e Entity, target Status, now func() time.Time) (Entity, error) {
	if now == nil {
		now = time.Now
	}
	if !isStatusTransitionAllowed(e.Status, target) {
		fromStatus := e.Status.Label()
		toStatus := target.Label()
		return Entity{}, apperrors.WithMetadata(
			apperrors.CodeEntityInvalidStatusTransition,
			fmt.Sprintf("validation status transition not allowed: %s -> %s", fromStatus, toStatus),
			map[string]string{"FromStatus": fromStatus, "ToStatus": toStatus},
		)
	}

	updated := e
	updated.Status = target
	updated.Version = e.Version + 1
	updatedAt := now().UTC()
	updated.UpdatedAt = updatedAt
	if target == StatusArchived && updated.ArchivedAt == nil {
		updated.ArchivedAt = &updatedAt
	}
	// A direct transition clears any propagation tag from a previous cascade.
	updated.PropagatedFrom = ""
	updated.PropagatedBy = ""
	updated.PropagatedAt = nil
	return updated, nil
}

// Propagate applies a parent's validation outcome to a child entity,
// tagging the child with the propagation origin. Unlike Transition it is
// idempotent: a child already at the target status is returned unchanged.
func Propagate(e Entity, target Status, parentID, reviewerID string, now func() time.Time) (Entity, bool, error) {
	if now == nil {
		now = time.Now
	}
	if !target.Propagates() {
		return Entity{}, false, apperrors.WithMetadata(
			apperrors.CodeEntityInvalidStatusTransition,
			fmt.Sprintf("status %s does not propagate", target.Label()),
			map[string]string{"ToStatus": target.Label()},
		)
	}
	if e.Status == target {
		return e, false, nil
	}

	updated := e
	updated.Status = target
	updated.Version = e.Version + 1
	updatedAt := now().UTC()
	updated.UpdatedAt = updatedAt
	if target == StatusArchived && updated.ArchivedAt == nil {
		updated.ArchivedAt = &updatedAt
	}
	updated.PropagatedFrom = parentID
	updated.PropagatedBy = reviewerID
	updated.PropagatedAt = &updatedAt
	return updated, true, nil
}

// KindFromLabel parses a string label into a Kind.
// It trims whitespace and matches case-insensitively. Both short ("FOOD")
// and prefixed ("ENTITY_KIND_FOOD") forms are accepted.
func KindFromLabel(value string) (Kind, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return KindUnspecified, fmt.Errorf("entity kind is required")
	}
	upper := strings.ToUpper(trimmed)
	switch upper {
	case "FOOD", "ENTITY_KIND_FOOD":
		return KindFood, nil
	case "NUTRIENT", "ENTITY_KIND_NUTRIENT":
		return KindNutrient, nil
	case "CONTENT", "ENTITY_KIND_CONTENT":
		return KindContent, nil
	default:
		return KindUnspecified, fmt.Errorf("unknown entity kind: %s", trimmed)
	}
}

// Label returns a stable label for an entity kind.
func (k Kind) Label() string {
	switch k {
	case KindFood:
		return "FOOD"
	case KindNutrient:
		return "NUTRIENT"
	case KindContent:
		return "CONTENT"
	default:
		return "UNSPECIFIED"
	}
}

// NormalizeCreateInput trims and validates entity input metadata.
func NormalizeCreateInput(input CreateInput) (CreateInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return CreateInput{}, ErrEmptyName
	}
	if input.Kind == KindUnspecified {
		return CreateInput{}, ErrInvalidKind
	}
	input.Description = strings.TrimSpace(input.Description)
	parents := make([]string, 0, len(input.ParentIDs))
	for _, parent := range input.ParentIDs {
		parent = strings.TrimSpace(parent)
		if parent != "" {
			parents = append(parents, parent)
		}
	}
	input.ParentIDs = parents
	return input, nil
}
