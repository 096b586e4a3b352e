// Package crossref compares source assertions against the trusted
// consensus and records divergence results.
package crossref

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	otelattr "go.opentelemetry.io/otel/attribute"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	domain "github.com/vitalyst/provenance/internal/domain/crossref"
	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/domain/source"
	"github.com/vitalyst/provenance/internal/platform/id"
	"github.com/vitalyst/provenance/internal/telemetry"
)

var tracer = otel.Tracer("vitalyst.provenance/crossref")

// Config tunes the consensus comparison.
type Config struct {
	// TrustThreshold is the minimum overall reliability for a source to
	// count toward the consensus.
	TrustThreshold float64
	// RelativeTolerance is the relative deviation above which a value is
	// considered divergent.
	RelativeTolerance float64
	// AbsoluteThresholds holds per-attribute absolute deviation caps. A
	// value is flagged when it exceeds the relative tolerance or the
	// attribute's absolute cap.
	AbsoluteThresholds map[string]float64
	// FlagApprovedOnDivergence sends approved entities back for review
	// when one of their values diverges from the consensus.
	FlagApprovedOnDivergence bool
}

// DefaultConfig returns the production comparison settings.
func DefaultConfig() Config {
	return Config{
		TrustThreshold:    0.8,
		RelativeTolerance: 0.10,
	}
}

// Store is the datastore surface the validator needs.
type Store interface {
	GetEntity(ctx context.Context, id string) (entity.Entity, error)
	GetSource(ctx context.Context, id string) (source.Source, error)
	ListHeads(ctx context.Context, entityID, attribute string) ([]assertion.Assertion, error)
	ListAttributes(ctx context.Context, entityID string) ([]string, error)
	AppendCrossRefResult(ctx context.Context, r domain.Result) error
}

// Flagger sends an entity back into the review workflow after a
// divergence finding. The workflow service implements it.
type Flagger interface {
	FlagDivergence(ctx context.Context, entityID, reason string) error
}

// Service runs trusted-consensus comparisons.
type Service struct {
	store       Store
	emitter     *telemetry.Emitter
	baseFlagger Flagger
	cfg         Config
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService creates a cross-reference validator. The flagger may be nil.
func NewService(store Store, emitter *telemetry.Emitter, flagger Flagger, cfg Config) *Service {
	if cfg.TrustThreshold <= 0 {
		cfg.TrustThreshold = DefaultConfig().TrustThreshold
	}
	if cfg.RelativeTolerance <= 0 {
		cfg.RelativeTolerance = DefaultConfig().RelativeTolerance
	}
	return &Service{
		store:       store,
		emitter:     emitter,
		baseFlagger: flagger,
		cfg:         cfg,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// ValidateAttribute compares every source's current numeric value for
// (entity, attribute) against the median of trusted sources. Results are
// persisted append-only and returned in source order. Without any trusted
// source the comparison records a zero-sample result per value and flags
// nothing.
func (s *Service) ValidateAttribute(ctx context.Context, entityID, attribute string) ([]domain.Result, error) {
	ctx, span := tracer.Start(ctx, "crossref.validate")
	defer span.End()
	span.SetAttributes(
		otelattr.String("entity.id", entityID),
		otelattr.String("attribute", attribute),
	)

	heads, err := s.store.ListHeads(ctx, entityID, attribute)
	if err != nil {
		return nil, fmt.Errorf("list heads: %w", err)
	}

	type sample struct {
		head    assertion.Assertion
		trusted bool
	}
	var samples []sample
	var trustedValues []float64
	for _, head := range heads {
		if head.Value.Kind != assertion.ValueKindNumber {
			continue
		}
		src, err := s.store.GetSource(ctx, head.SourceID)
		if err != nil {
			return nil, fmt.Errorf("load source %s: %w", head.SourceID, err)
		}
		trusted := src.Metrics.Overall >= s.cfg.TrustThreshold
		if trusted {
			trustedValues = append(trustedValues, head.Value.Number)
		}
		samples = append(samples, sample{head: head, trusted: trusted})
	}

	consensus := median(trustedValues)
	sampleCount := len(trustedValues)
	absThreshold, hasAbsThreshold := s.cfg.AbsoluteThresholds[attribute]

	var results []domain.Result
	divergentSources := 0
	for _, sm := range samples {
		input := domain.Input{
			EntityID:    entityID,
			Attribute:   attribute,
			AssertionID: sm.head.ID,
			SourceID:    sm.head.SourceID,
			Value:       sm.head.Value.Number,
			SampleCount: sampleCount,
		}
		if sampleCount > 0 {
			absDiff := math.Abs(sm.head.Value.Number - consensus)
			input.ConsensusMedian = consensus
			input.Deviation = relativeDeviation(sm.head.Value.Number, consensus)
			input.Divergent = input.Deviation > s.cfg.RelativeTolerance ||
				(hasAbsThreshold && absDiff > absThreshold)
		}

		r, err := domain.New(input, s.clock, s.idGenerator)
		if err != nil {
			return nil, err
		}
		if err := s.store.AppendCrossRefResult(ctx, r); err != nil {
			s.emitter.Failure(ctx, "crossref.validate", entityID, r.SourceID, err)
			return nil, fmt.Errorf("append cross-reference result: %w", err)
		}
		if r.Divergent {
			divergentSources++
		}
		results = append(results, r)
	}

	if divergentSources > 0 {
		if err := s.flagDivergence(ctx, entityID, attribute, divergentSources); err != nil {
			return nil, err
		}
	}
	s.emitter.Success(ctx, "crossref.validate", entityID, "")
	return results, nil
}

// ValidateEntity runs the comparison over every asserted attribute.
func (s *Service) ValidateEntity(ctx context.Context, entityID string) ([]domain.Result, error) {
	attributes, err := s.store.ListAttributes(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	var results []domain.Result
	for _, attr := range attributes {
		attrResults, err := s.ValidateAttribute(ctx, entityID, attr)
		if err != nil {
			return nil, err
		}
		results = append(results, attrResults...)
	}
	return results, nil
}

func (s *Service) flagDivergence(ctx context.Context, entityID, attribute string, count int) error {
	if !s.cfg.FlagApprovedOnDivergence || s.baseFlagger == nil {
		return nil
	}
	e, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("load entity %s: %w", entityID, err)
	}
	if e.Status != entity.StatusApproved {
		return nil
	}
	reason := fmt.Sprintf("%d source(s) diverge from the trusted consensus on %s", count, attribute)
	if err := s.baseFlagger.FlagDivergence(ctx, entityID, reason); err != nil {
		return fmt.Errorf("flag divergence: %w", err)
	}
	return nil
}

// relativeDeviation returns |value-consensus| relative to the consensus
// magnitude. A zero consensus with a nonzero value reads as full deviation.
func relativeDeviation(value, consensus float64) float64 {
	diff := math.Abs(value - consensus)
	if diff == 0 {
		return 0
	}
	if consensus == 0 {
		return 1
	}
	return diff / math.Abs(consensus)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
