// Package assertion models immutable attribute assertions and lineage rules.
package assertion

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/platform/id"
)

var (
	// ErrEmptyEntityID indicates a missing entity id.
	ErrEmptyEntityID = apperrors.New(apperrors.CodeAssertionEmptyEntityID, "entity id is required")
	// ErrEmptyAttribute indicates a missing attribute name.
	ErrEmptyAttribute = apperrors.New(apperrors.CodeAssertionEmptyAttribute, "attribute name is required")
	// ErrEmptySourceID indicates a missing source id.
	ErrEmptySourceID = apperrors.New(apperrors.CodeAssertionEmptySourceID, "source id is required")
	// ErrConfidenceRange indicates a confidence outside [0,1].
	ErrConfidenceRange = apperrors.New(apperrors.CodeAssertionConfidenceRange, "confidence must be between 0 and 1")
)

// Assertion is an immutable claim by one source about one attribute value.
// Once appended to the ledger only ValidTo may ever be written, and only to
// close the open version of a relationship attribute.
type Assertion struct {
	ID         string
	EntityID   string
	Attribute  string
	Value      Value
	SourceID   string
	Confidence float64
	AssertedAt time.Time
	// PreviousID points at the predecessor in the lineage chain, empty for
	// the first assertion of an (entity, attribute) pair.
	PreviousID string
	// ValidFrom/ValidTo bound relationship-typed attribute versions.
	// ValidTo is nil while the version is open.
	ValidFrom *time.Time
	ValidTo   *time.Time
}

// Input describes a new assertion before lineage linking.
type Input struct {
	EntityID   string
	Attribute  string
	Value      Value
	SourceID   string
	Confidence float64
	// ValidFrom marks the assertion as a relationship-attribute version
	// opening at the given instant.
	ValidFrom *time.Time
}

// IsRelationship reports whether the assertion carries temporal validity.
func (a Assertion) IsRelationship() bool {
	return a.ValidFrom != nil
}

// InForceAt reports whether this assertion was the value in force at t.
// Relationship versions use their validity window; scalar assertions are in
// force from AssertedAt onward (the caller walks newest-first, so the first
// match wins).
func (a Assertion) InForceAt(t time.Time) bool {
	if a.IsRelationship() {
		if t.Before(*a.ValidFrom) {
			return false
		}
		return a.ValidTo == nil || t.Before(*a.ValidTo)
	}
	return !t.Before(a.AssertedAt)
}

// New builds an assertion from input, linking it after the given head.
func New(input Input, previousID string, now func() time.Time, idGenerator func() (string, error)) (Assertion, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := Normalize(input)
	if err != nil {
		return Assertion{}, err
	}

	assertionID, err := idGenerator()
	if err != nil {
		return Assertion{}, fmt.Errorf("generate assertion id: %w", err)
	}

	assertedAt := now().UTC()
	a := Assertion{
		ID:         assertionID,
		EntityID:   normalized.EntityID,
		Attribute:  normalized.Attribute,
		Value:      normalized.Value,
		SourceID:   normalized.SourceID,
		Confidence: normalized.Confidence,
		AssertedAt: assertedAt,
		PreviousID: strings.TrimSpace(previousID),
	}
	if normalized.ValidFrom != nil {
		validFrom := normalized.ValidFrom.UTC()
		a.ValidFrom = &validFrom
	}
	return a, nil
}

// Normalize trims and validates assertion input.
func Normalize(input Input) (Input, error) {
	input.EntityID = strings.TrimSpace(input.EntityID)
	if input.EntityID == "" {
		return Input{}, ErrEmptyEntityID
	}
	input.Attribute = strings.TrimSpace(input.Attribute)
	if input.Attribute == "" {
		return Input{}, ErrEmptyAttribute
	}
	input.SourceID = strings.TrimSpace(input.SourceID)
	if input.SourceID == "" {
		return Input{}, ErrEmptySourceID
	}
	if input.Confidence < 0 || input.Confidence > 1 {
		return Input{}, ErrConfidenceRange
	}
	if err := input.Value.Validate(); err != nil {
		return Input{}, apperrors.Wrap(apperrors.CodeAssertionInvalidValue, "invalid assertion value", err)
	}
	return input, nil
}
