// Package reliability computes composite source reliability metrics.
package reliability

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/vitalyst/provenance/internal/domain/crossref"
	"github.com/vitalyst/provenance/internal/domain/source"
	"github.com/vitalyst/provenance/internal/domain/validation"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/telemetry"
)

var tracer = otel.Tracer("vitalyst.provenance/reliability")

const (
	day                      = 24 * time.Hour
	defaultAccuracyHalfLife  = 30 * day
	defaultFreshnessHalfLife = 90 * day
	defaultMinSamples        = 3
	// closenessSpread grades cross-reference closeness across twice the
	// divergence tolerance before it bottoms out at zero.
	closenessSpread = 2
)

// Weights are the component weights of the overall score. They are
// normalized before use, so only their ratios matter.
type Weights struct {
	Accuracy       float64
	Consistency    float64
	Freshness      float64
	Verification   float64
	Authority      float64
	CrossReference float64
}

// DefaultWeights is the production scoring profile.
func DefaultWeights() Weights {
	return Weights{
		Accuracy:     0.4,
		Consistency:  0.2,
		Freshness:    0.2,
		Verification: 0.2,
	}
}

// Config tunes the scorer.
type Config struct {
	AccuracyHalfLife  time.Duration
	FreshnessHalfLife time.Duration
	// Tolerance grades cross-reference closeness; it should match the
	// validator's relative tolerance.
	Tolerance float64
	// NeutralPrior is the score assigned to components without history.
	NeutralPrior float64
	// MinSamples is the history size below which metrics are marked
	// insufficient.
	MinSamples int
	Weights    Weights
	// Authority maps source kinds to a fixed institutional score.
	Authority map[source.Kind]float64
}

// DefaultConfig returns the production scorer settings.
func DefaultConfig() Config {
	return Config{
		AccuracyHalfLife:  defaultAccuracyHalfLife,
		FreshnessHalfLife: defaultFreshnessHalfLife,
		Tolerance:         0.10,
		NeutralPrior:      source.NeutralPrior,
		MinSamples:        defaultMinSamples,
		Weights:           DefaultWeights(),
		Authority: map[source.Kind]float64{
			source.KindPublication: 0.9,
			source.KindDatabase:    0.8,
			source.KindCSV:         0.6,
			source.KindManual:      0.5,
			source.KindAI:          0.4,
		},
	}
}

func (c Config) withDefaults() Config {
	if c.AccuracyHalfLife <= 0 {
		c.AccuracyHalfLife = defaultAccuracyHalfLife
	}
	if c.FreshnessHalfLife <= 0 {
		c.FreshnessHalfLife = defaultFreshnessHalfLife
	}
	if c.Tolerance <= 0 {
		c.Tolerance = 0.10
	}
	if c.NeutralPrior <= 0 {
		c.NeutralPrior = source.NeutralPrior
	}
	if c.MinSamples <= 0 {
		c.MinSamples = defaultMinSamples
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	return c
}

// ComputeInput is the full history the scorer reads.
type ComputeInput struct {
	Source source.Source
	// Events are the validation events that reviewed this source's data.
	Events []validation.Event
	// Comparisons are the cross-reference results for this source.
	Comparisons []crossref.Result
	Now         time.Time
}

// Compute derives a metrics snapshot from history. It is pure and never
// fails: empty history yields the neutral prior with
// InsufficientHistory set.
func Compute(cfg Config, in ComputeInput) source.Metrics {
	cfg = cfg.withDefaults()
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	m := source.Metrics{ComputedAt: now.UTC()}

	accuracy, accuracySamples := accuracyScore(cfg, in.Events, now)
	m.Accuracy = orNeutral(cfg, accuracy, accuracySamples)

	consistency, consistencySamples := consistencyScore(in.Comparisons)
	m.Consistency = orNeutral(cfg, consistency, consistencySamples)

	closeness, closenessSamples := crossReferenceScore(cfg, in.Comparisons)
	m.CrossReference = orNeutral(cfg, closeness, closenessSamples)

	m.Freshness = freshnessScore(cfg, in.Source, now)
	m.Verification = verificationScore(in.Source.Verification)
	m.Authority = authorityScore(cfg, in.Source.Kind)

	m.SampleCount = accuracySamples + consistencySamples
	m.InsufficientHistory = m.SampleCount < cfg.MinSamples
	m.Overall = clamp01(overallScore(cfg.Weights, m))
	return m
}

// accuracyScore is the recency-weighted approval rate over validation
// events. Weight halves every AccuracyHalfLife.
func accuracyScore(cfg Config, events []validation.Event, now time.Time) (float64, int) {
	var weightSum, scoreSum float64
	samples := 0
	for _, e := range events {
		var score float64
		switch {
		case e.Approved():
			score = 1
		case e.Rejection():
			score = 0
		default:
			continue
		}
		age := now.Sub(e.Timestamp)
		if age < 0 {
			age = 0
		}
		weight := math.Exp2(-age.Hours() / cfg.AccuracyHalfLife.Hours())
		weightSum += weight
		scoreSum += weight * score
		samples++
	}
	if weightSum == 0 {
		return 0, 0
	}
	return scoreSum / weightSum, samples
}

// consistencyScore is the plain agreement rate over comparisons that had
// a trusted consensus to compare against.
func consistencyScore(comparisons []crossref.Result) (float64, int) {
	samples := 0
	agreements := 0
	for _, r := range comparisons {
		if r.SampleCount == 0 {
			continue
		}
		samples++
		if r.Agreement() {
			agreements++
		}
	}
	if samples == 0 {
		return 0, 0
	}
	return float64(agreements) / float64(samples), samples
}

// crossReferenceScore grades how close the source sits to the consensus,
// not just whether it cleared the tolerance.
func crossReferenceScore(cfg Config, comparisons []crossref.Result) (float64, int) {
	var sum float64
	samples := 0
	for _, r := range comparisons {
		if r.SampleCount == 0 {
			continue
		}
		closeness := 1 - r.Deviation/(closenessSpread*cfg.Tolerance)
		sum += clamp01(closeness)
		samples++
	}
	if samples == 0 {
		return 0, 0
	}
	return sum / float64(samples), samples
}

// freshnessScore decays from the last verification. A source never
// verified scores zero.
func freshnessScore(cfg Config, src source.Source, now time.Time) float64 {
	if src.LastVerifiedAt == nil {
		return 0
	}
	age := now.Sub(*src.LastVerifiedAt)
	if age < 0 {
		age = 0
	}
	return clamp01(math.Exp2(-age.Hours() / cfg.FreshnessHalfLife.Hours()))
}

func verificationScore(v source.Verification) float64 {
	switch v {
	case source.VerificationVerified:
		return 1
	case source.VerificationPending:
		return 0.5
	default:
		return 0
	}
}

func authorityScore(cfg Config, kind source.Kind) float64 {
	if score, ok := cfg.Authority[kind]; ok {
		return score
	}
	return cfg.NeutralPrior
}

func overallScore(w Weights, m source.Metrics) float64 {
	total := w.Accuracy + w.Consistency + w.Freshness + w.Verification + w.Authority + w.CrossReference
	if total == 0 {
		return source.NeutralPrior
	}
	sum := w.Accuracy*m.Accuracy +
		w.Consistency*m.Consistency +
		w.Freshness*m.Freshness +
		w.Verification*m.Verification +
		w.Authority*m.Authority +
		w.CrossReference*m.CrossReference
	return sum / total
}

func orNeutral(cfg Config, score float64, samples int) float64 {
	if samples == 0 {
		return cfg.NeutralPrior
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Store is the datastore surface the scorer needs.
type Store interface {
	GetSource(ctx context.Context, id string) (source.Source, error)
	ListSources(ctx context.Context, pageSize int, pageToken string) (storage.SourcePage, error)
	PutSourceMetrics(ctx context.Context, sourceID string, m source.Metrics) error
	ListValidationEventsBySource(ctx context.Context, sourceID string) ([]validation.Event, error)
	ListCrossRefResultsBySource(ctx context.Context, sourceID string) ([]crossref.Result, error)
}

// Service refreshes stored reliability snapshots.
type Service struct {
	store   Store
	emitter *telemetry.Emitter
	cfg     Config
	clock   func() time.Time
}

// NewService creates a reliability scorer service.
func NewService(store Store, emitter *telemetry.Emitter, cfg Config) *Service {
	return &Service{
		store:   store,
		emitter: emitter,
		cfg:     cfg.withDefaults(),
		clock:   time.Now,
	}
}

// Refresh recomputes and stores the metrics snapshot for one source.
func (s *Service) Refresh(ctx context.Context, sourceID string) (source.Metrics, error) {
	ctx, span := tracer.Start(ctx, "reliability.refresh")
	defer span.End()

	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return source.Metrics{}, fmt.Errorf("load source %s: %w", sourceID, err)
	}
	events, err := s.store.ListValidationEventsBySource(ctx, sourceID)
	if err != nil {
		return source.Metrics{}, fmt.Errorf("load validation events: %w", err)
	}
	comparisons, err := s.store.ListCrossRefResultsBySource(ctx, sourceID)
	if err != nil {
		return source.Metrics{}, fmt.Errorf("load cross-reference results: %w", err)
	}

	m := Compute(s.cfg, ComputeInput{
		Source:      src,
		Events:      events,
		Comparisons: comparisons,
		Now:         s.clock(),
	})
	if err := s.store.PutSourceMetrics(ctx, sourceID, m); err != nil {
		s.emitter.Failure(ctx, "reliability.refresh", "", sourceID, err)
		return source.Metrics{}, fmt.Errorf("store metrics: %w", err)
	}
	s.emitter.Success(ctx, "reliability.refresh", "", sourceID)
	return m, nil
}

// Sweep refreshes every source. It checks the context between sources,
// so cancellation loses at most the in-flight refresh; completed
// snapshots are retained. Returns the number of sources refreshed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	refreshed := 0
	pageToken := ""
	for {
		page, err := s.store.ListSources(ctx, 0, pageToken)
		if err != nil {
			return refreshed, fmt.Errorf("list sources: %w", err)
		}
		for _, src := range page.Sources {
			if err := ctx.Err(); err != nil {
				return refreshed, err
			}
			if _, err := s.Refresh(ctx, src.ID); err != nil {
				return refreshed, err
			}
			refreshed++
		}
		if page.NextPageToken == "" {
			return refreshed, nil
		}
		pageToken = page.NextPageToken
	}
}
