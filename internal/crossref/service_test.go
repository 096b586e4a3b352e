package crossref

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/domain/source"
	"github.com/vitalyst/provenance/internal/storage/memory"
	"github.com/vitalyst/provenance/internal/telemetry"
)

func seedSource(t *testing.T, store *memory.Store, id string, overall float64) {
	t.Helper()
	ctx := context.Background()
	if err := store.PutSource(ctx, source.Source{ID: id, Kind: source.KindDatabase, Name: id}); err != nil {
		t.Fatalf("PutSource(%s) error = %v", id, err)
	}
	metrics := source.NeutralMetrics(time.Now())
	metrics.Overall = overall
	if err := store.PutSourceMetrics(ctx, id, metrics); err != nil {
		t.Fatalf("PutSourceMetrics(%s) error = %v", id, err)
	}
}

func seedHead(t *testing.T, store *memory.Store, id, entityID, attribute, sourceID string, value float64, assertedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	head, err := store.GetHead(ctx, entityID, attribute)
	previousID := ""
	if err == nil {
		previousID = head.ID
	}
	a := assertion.Assertion{
		ID:         id,
		EntityID:   entityID,
		Attribute:  attribute,
		Value:      assertion.NumberValue(value, "mg/100g"),
		SourceID:   sourceID,
		Confidence: 0.9,
		AssertedAt: assertedAt,
		PreviousID: previousID,
	}
	if err := store.AppendAssertion(ctx, a, previousID); err != nil {
		t.Fatalf("AppendAssertion(%s) error = %v", id, err)
	}
}

func setupConsensus(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	if err := store.PutEntity(ctx, entity.Entity{ID: "ent-1", Kind: entity.KindFood, Name: "lentils", Status: entity.StatusApproved, Version: 1}); err != nil {
		t.Fatalf("PutEntity() error = %v", err)
	}
	seedSource(t, store, "src-trusted-a", 0.9)
	seedSource(t, store, "src-trusted-b", 0.85)
	seedSource(t, store, "src-candidate", 0.5)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedHead(t, store, "as-a", "ent-1", "co2_footprint", "src-trusted-a", 12.4, base)
	seedHead(t, store, "as-b", "ent-1", "co2_footprint", "src-trusted-b", 12.6, base.Add(time.Minute))
	return store
}

func TestValidateAttributeAgreement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupConsensus(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedHead(t, store, "as-c", "ent-1", "co2_footprint", "src-candidate", 12.4, base.Add(2*time.Minute))

	svc := NewService(store, telemetry.NewEmitter(nil, nil), nil, DefaultConfig())
	results, err := svc.ValidateAttribute(ctx, "ent-1", "co2_footprint")
	if err != nil {
		t.Fatalf("ValidateAttribute() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	var candidate *int
	for i, r := range results {
		if r.ConsensusMedian != 12.5 {
			t.Errorf("result %s median = %v, want 12.5", r.SourceID, r.ConsensusMedian)
		}
		if r.SampleCount != 2 {
			t.Errorf("result %s sample count = %d, want 2", r.SourceID, r.SampleCount)
		}
		if r.Divergent {
			t.Errorf("result %s divergent, want agreement", r.SourceID)
		}
		if r.SourceID == "src-candidate" {
			candidate = &i
		}
	}
	if candidate == nil {
		t.Fatal("candidate source missing from results")
	}
	got := results[*candidate].Deviation
	if want := 0.1 / 12.5; math.Abs(got-want) > 1e-9 {
		t.Errorf("candidate deviation = %v, want %v", got, want)
	}
	if !results[*candidate].Agreement() {
		t.Error("candidate should be in agreement")
	}
}

func TestValidateAttributeFlagsOutlier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupConsensus(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedHead(t, store, "as-c", "ent-1", "co2_footprint", "src-candidate", 30.0, base.Add(2*time.Minute))

	svc := NewService(store, telemetry.NewEmitter(nil, nil), nil, DefaultConfig())
	results, err := svc.ValidateAttribute(ctx, "ent-1", "co2_footprint")
	if err != nil {
		t.Fatalf("ValidateAttribute() error = %v", err)
	}

	for _, r := range results {
		wantDivergent := r.SourceID == "src-candidate"
		if r.Divergent != wantDivergent {
			t.Errorf("result %s divergent = %v, want %v", r.SourceID, r.Divergent, wantDivergent)
		}
	}

	persisted, err := store.ListCrossRefResultsBySource(ctx, "src-candidate")
	if err != nil {
		t.Fatalf("ListCrossRefResultsBySource() error = %v", err)
	}
	if len(persisted) != 1 || !persisted[0].Divergent {
		t.Fatalf("persisted results = %+v, want one divergent record", persisted)
	}
}

func TestValidateAttributeAbsoluteThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	if err := store.PutEntity(ctx, entity.Entity{ID: "ent-1", Kind: entity.KindFood, Name: "lentils", Status: entity.StatusDraft, Version: 1}); err != nil {
		t.Fatalf("PutEntity() error = %v", err)
	}
	seedSource(t, store, "src-trusted-a", 0.9)
	seedSource(t, store, "src-trusted-b", 0.85)
	seedSource(t, store, "src-candidate", 0.5)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedHead(t, store, "as-a", "ent-1", "energy_kj", "src-trusted-a", 995, base)
	seedHead(t, store, "as-b", "ent-1", "energy_kj", "src-trusted-b", 1005, base.Add(time.Minute))
	// 1050 is only 5% off the 1000 median, but 50 kJ over the absolute cap.
	seedHead(t, store, "as-c", "ent-1", "energy_kj", "src-candidate", 1050, base.Add(2*time.Minute))

	cfg := DefaultConfig()
	cfg.AbsoluteThresholds = map[string]float64{"energy_kj": 30}
	svc := NewService(store, telemetry.NewEmitter(nil, nil), nil, cfg)

	results, err := svc.ValidateAttribute(ctx, "ent-1", "energy_kj")
	if err != nil {
		t.Fatalf("ValidateAttribute() error = %v", err)
	}
	for _, r := range results {
		wantDivergent := r.SourceID == "src-candidate"
		if r.Divergent != wantDivergent {
			t.Errorf("result %s divergent = %v, want %v", r.SourceID, r.Divergent, wantDivergent)
		}
	}
}

func TestValidateAttributeNoTrustedSources(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	if err := store.PutEntity(ctx, entity.Entity{ID: "ent-1", Kind: entity.KindFood, Name: "lentils", Status: entity.StatusDraft, Version: 1}); err != nil {
		t.Fatalf("PutEntity() error = %v", err)
	}
	seedSource(t, store, "src-candidate", 0.5)
	seedHead(t, store, "as-c", "ent-1", "co2_footprint", "src-candidate", 30.0, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(store, telemetry.NewEmitter(nil, nil), nil, DefaultConfig())
	results, err := svc.ValidateAttribute(ctx, "ent-1", "co2_footprint")
	if err != nil {
		t.Fatalf("ValidateAttribute() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.SampleCount != 0 || r.Divergent {
		t.Errorf("result = %+v, want zero samples and no divergence", r)
	}
	if r.Agreement() {
		t.Error("zero-sample result must not read as agreement")
	}
}

type recordingFlagger struct {
	entityID string
	reason   string
	calls    int
}

func (f *recordingFlagger) FlagDivergence(_ context.Context, entityID, reason string) error {
	f.entityID = entityID
	f.reason = reason
	f.calls++
	return nil
}

func TestValidateAttributeFlagsApprovedEntity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupConsensus(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedHead(t, store, "as-c", "ent-1", "co2_footprint", "src-candidate", 30.0, base.Add(2*time.Minute))

	flagger := &recordingFlagger{}
	cfg := DefaultConfig()
	cfg.FlagApprovedOnDivergence = true
	svc := NewService(store, telemetry.NewEmitter(nil, nil), flagger, cfg)

	if _, err := svc.ValidateAttribute(ctx, "ent-1", "co2_footprint"); err != nil {
		t.Fatalf("ValidateAttribute() error = %v", err)
	}
	if flagger.calls != 1 || flagger.entityID != "ent-1" {
		t.Fatalf("flagger calls = %d entity = %q, want one call for ent-1", flagger.calls, flagger.entityID)
	}
}

func TestValidateAttributeDivergenceFlagOffByDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupConsensus(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedHead(t, store, "as-c", "ent-1", "co2_footprint", "src-candidate", 30.0, base.Add(2*time.Minute))

	flagger := &recordingFlagger{}
	svc := NewService(store, telemetry.NewEmitter(nil, nil), flagger, DefaultConfig())

	if _, err := svc.ValidateAttribute(ctx, "ent-1", "co2_footprint"); err != nil {
		t.Fatalf("ValidateAttribute() error = %v", err)
	}
	if flagger.calls != 0 {
		t.Fatalf("flagger calls = %d, want 0", flagger.calls)
	}
}

func TestMedian(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "empty", values: nil, want: 0},
		{name: "single", values: []float64{3}, want: 3},
		{name: "odd", values: []float64{5, 1, 3}, want: 3},
		{name: "even", values: []float64{12.6, 12.4}, want: 12.5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := median(tt.values); got != tt.want {
				t.Errorf("median(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}
