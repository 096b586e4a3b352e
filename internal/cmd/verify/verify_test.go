package verify

import (
	"context"
	"flag"
	"testing"
	"time"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/ledger"
	"github.com/vitalyst/provenance/internal/storage/memory"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	t.Setenv("VITALYST_VERIFY_DB_PATH", "data/env.db")

	cfg, err := ParseConfig(fs, []string{"-entity", "ent-1"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/env.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/env.db")
	}
	if cfg.EntityID != "ent-1" {
		t.Fatalf("entity = %q, want ent-1", cfg.EntityID)
	}
}

func seedLineage(t *testing.T, store *memory.Store, entityID string) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	err := store.PutEntity(ctx, entity.Entity{
		ID: entityID, Kind: entity.KindFood, Name: "spinach",
		Status: entity.StatusDraft, Version: 1, CreatedAt: base, UpdatedAt: base,
	})
	if err != nil {
		t.Fatalf("PutEntity() error = %v", err)
	}

	previous := ""
	for i, id := range []string{entityID + "-a1", entityID + "-a2"} {
		a := assertion.Assertion{
			ID: id, EntityID: entityID, Attribute: "iron_mg",
			Value: assertion.NumberValue(12.4, "mg/100g"), SourceID: "src-usda",
			Confidence: 0.9, AssertedAt: base.Add(time.Duration(i) * time.Hour),
			PreviousID: previous,
		}
		if err := store.AppendAssertion(ctx, a, previous); err != nil {
			t.Fatalf("AppendAssertion(%s) error = %v", id, err)
		}
		previous = id
	}
}

func TestAuditLineagesCleanStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	seedLineage(t, store, "ent-1")
	seedLineage(t, store, "ent-2")

	service := ledger.NewService(store, nil)
	findings, err := auditLineages(ctx, store, service, "")
	if err != nil {
		t.Fatalf("auditLineages() error = %v", err)
	}
	if findings != 0 {
		t.Fatalf("findings = %d, want 0", findings)
	}
}

func TestAuditLineagesSingleEntity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	seedLineage(t, store, "ent-1")

	service := ledger.NewService(store, nil)
	findings, err := auditLineages(ctx, store, service, "ent-1")
	if err != nil {
		t.Fatalf("auditLineages() error = %v", err)
	}
	if findings != 0 {
		t.Fatalf("findings = %d, want 0", findings)
	}
}
