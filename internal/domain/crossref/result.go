// Package crossref models trusted-consensus comparison results.
package crossref

import (
	"fmt"
	"strings"
	"time"

	"github.com/vitalyst/provenance/internal/platform/id"
)

// Result records one comparison of a source's assertion against the
// trusted-source consensus for an (entity, attribute) pair. Append-only.
type Result struct {
	ID          string
	EntityID    string
	Attribute   string
	AssertionID string
	// SourceID is the candidate source whose value was compared.
	SourceID string
	// Value is the candidate numeric value.
	Value float64
	// ConsensusMedian is the trusted-set median the value was compared to.
	ConsensusMedian float64
	// Deviation is the relative deviation from the consensus median.
	Deviation float64
	// SampleCount is the number of trusted sources behind the consensus.
	SampleCount int
	Divergent   bool
	ComparedAt  time.Time
}

// Input describes a comparison outcome before identifiers are assigned.
type Input struct {
	EntityID        string
	Attribute       string
	AssertionID     string
	SourceID        string
	Value           float64
	ConsensusMedian float64
	Deviation       float64
	SampleCount     int
	Divergent       bool
}

// New builds a result with a generated id and timestamp.
func New(input Input, now func() time.Time, idGenerator func() (string, error)) (Result, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.EntityID = strings.TrimSpace(input.EntityID)
	if input.EntityID == "" {
		return Result{}, fmt.Errorf("entity id is required")
	}
	input.Attribute = strings.TrimSpace(input.Attribute)
	if input.Attribute == "" {
		return Result{}, fmt.Errorf("attribute name is required")
	}
	input.SourceID = strings.TrimSpace(input.SourceID)
	if input.SourceID == "" {
		return Result{}, fmt.Errorf("source id is required")
	}

	resultID, err := idGenerator()
	if err != nil {
		return Result{}, fmt.Errorf("generate cross-reference result id: %w", err)
	}

	return Result{
		ID:              resultID,
		EntityID:        input.EntityID,
		Attribute:       input.Attribute,
		AssertionID:     strings.TrimSpace(input.AssertionID),
		SourceID:        input.SourceID,
		Value:           input.Value,
		ConsensusMedian: input.ConsensusMedian,
		Deviation:       input.Deviation,
		SampleCount:     input.SampleCount,
		Divergent:       input.Divergent,
		ComparedAt:      now().UTC(),
	}, nil
}

// Agreement reports whether the comparison found the source in consensus.
// Results without any trusted sample carry no signal either way.
func (r Result) Agreement() bool {
	return r.SampleCount > 0 && !r.Divergent
}
