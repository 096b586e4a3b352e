package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	"github.com/vitalyst/provenance/internal/domain/crossref"
	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/domain/review"
	"github.com/vitalyst/provenance/internal/domain/source"
	"github.com/vitalyst/provenance/internal/domain/validation"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "provenance.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func testEntity(id string, parents ...string) entity.Entity {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return entity.Entity{
		ID:        id,
		Kind:      entity.KindFood,
		Name:      "spinach",
		Status:    entity.StatusDraft,
		Version:   1,
		ParentIDs: parents,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testAssertion(id, entityID, attribute, sourceID, previousID string, assertedAt time.Time) assertion.Assertion {
	return assertion.Assertion{
		ID:         id,
		EntityID:   entityID,
		Attribute:  attribute,
		Value:      assertion.NumberValue(12.4, "mg/100g"),
		SourceID:   sourceID,
		Confidence: 0.9,
		AssertedAt: assertedAt,
		PreviousID: previousID,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open("  "); err == nil {
		t.Fatal("Open(blank) error = nil, want error")
	}
}

func TestEntityRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)

	if _, err := store.GetEntity(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetEntity(missing) error = %v, want ErrNotFound", err)
	}

	e := testEntity("ent-1", "parent-1")
	archived := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	e.ArchivedAt = &archived
	if err := store.PutEntity(ctx, e); err != nil {
		t.Fatalf("PutEntity() error = %v", err)
	}

	got, err := store.GetEntity(ctx, "ent-1")
	if err != nil {
		t.Fatalf("GetEntity() error = %v", err)
	}
	if got.Name != e.Name || got.Status != e.Status || got.Kind != e.Kind {
		t.Errorf("GetEntity() = %+v, want %+v", got, e)
	}
	if len(got.ParentIDs) != 1 || got.ParentIDs[0] != "parent-1" {
		t.Errorf("ParentIDs = %v, want [parent-1]", got.ParentIDs)
	}
	if got.ArchivedAt == nil || !got.ArchivedAt.Equal(archived) {
		t.Errorf("ArchivedAt = %v, want %v", got.ArchivedAt, archived)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
	}
}

func TestPutEntityRequiresID(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)

	err := store.PutEntity(context.Background(), entity.Entity{Name: "spinach"})
	if apperrors.CodeOf(err) != apperrors.CodeEntityEmptyID {
		t.Fatalf("PutEntity(no id) code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeEntityEmptyID)
	}
}

func TestUpdateEntityStatusVersionConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)

	e := testEntity("ent-1")
	if err := store.PutEntity(ctx, e); err != nil {
		t.Fatalf("PutEntity() error = %v", err)
	}

	updated := e
	updated.Status = entity.StatusPendingReview
	updated.Version = 2
	if err := store.UpdateEntityStatus(ctx, updated, 1); err != nil {
		t.Fatalf("UpdateEntityStatus() error = %v", err)
	}

	stale := e
	stale.Status = entity.StatusInReview
	stale.Version = 2
	if err := store.UpdateEntityStatus(ctx, stale, 1); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("UpdateEntityStatus(stale) error = %v, want ErrVersionConflict", err)
	}

	missing := testEntity("ghost")
	if err := store.UpdateEntityStatus(ctx, missing, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("UpdateEntityStatus(missing) error = %v, want ErrNotFound", err)
	}

	got, err := store.GetEntity(ctx, "ent-1")
	if err != nil {
		t.Fatalf("GetEntity() error = %v", err)
	}
	if got.Status != entity.StatusPendingReview || got.Version != 2 {
		t.Errorf("entity = status %v version %d, want %v and 2", got.Status, got.Version, entity.StatusPendingReview)
	}
}

func TestListChildrenDirectOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)

	for _, e := range []entity.Entity{
		testEntity("parent"),
		testEntity("child-a", "parent"),
		testEntity("child-b", "parent"),
		testEntity("grandchild", "child-a"),
	} {
		if err := store.PutEntity(ctx, e); err != nil {
			t.Fatalf("PutEntity(%s) error = %v", e.ID, err)
		}
	}

	children, err := store.ListChildren(ctx, "parent")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(children) != 2 || children[0].ID != "child-a" || children[1].ID != "child-b" {
		t.Errorf("ListChildren() = %v, want [child-a child-b]", children)
	}
}

func TestListEntitiesPagination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)

	for _, id := range []string{"ent-1", "ent-2", "ent-3"} {
		if err := store.PutEntity(ctx, testEntity(id)); err != nil {
			t.Fatalf("PutEntity(%s) error = %v", id, err)
		}
	}

	first, err := store.ListEntities(ctx, 2, "")
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	if len(first.Entities) != 2 || first.NextPageToken == "" {
		t.Fatalf("first page = %d entities, token %q", len(first.Entities), first.NextPageToken)
	}

	second, err := store.ListEntities(ctx, 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("ListEntities(page 2) error = %v", err)
	}
	if len(second.Entities) != 1 || second.Entities[0].ID != "ent-3" {
		t.Errorf("second page = %v, want [ent-3]", second.Entities)
	}
	if second.NextPageToken != "" {
		t.Errorf("second page token = %q, want empty", second.NextPageToken)
	}
}

func TestAppendAssertionHeadConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := testAssertion("asrt-1", "ent-1", "iron_mg", "src-usda", "", base)
	if err := store.AppendAssertion(ctx, first, ""); err != nil {
		t.Fatalf("AppendAssertion(first) error = %v", err)
	}

	stale := testAssertion("asrt-2", "ent-1", "iron_mg", "src-usda", "", base.Add(time.Hour))
	if err := store.AppendAssertion(ctx, stale, ""); !errors.Is(err, storage.ErrHeadConflict) {
		t.Fatalf("AppendAssertion(stale head) error = %v, want ErrHeadConflict", err)
	}

	second := testAssertion("asrt-2", "ent-1", "iron_mg", "src-usda", "asrt-1", base.Add(time.Hour))
	if err := store.AppendAssertion(ctx, second, "asrt-1"); err != nil {
		t.Fatalf("AppendAssertion(second) error = %v", err)
	}

	head, err := store.GetHead(ctx, "ent-1", "iron_mg")
	if err != nil {
		t.Fatalf("GetHead() error = %v", err)
	}
	if head.ID != "asrt-2" || head.PreviousID != "asrt-1" {
		t.Errorf("head = %+v, want asrt-2 linked to asrt-1", head)
	}
}

func TestAppendAssertionRejectsTimeRegression(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := testAssertion("asrt-1", "ent-1", "iron_mg", "src-usda", "", base)
	if err := store.AppendAssertion(ctx, first, ""); err != nil {
		t.Fatalf("AppendAssertion(first) error = %v", err)
	}

	backdated := testAssertion("asrt-2", "ent-1", "iron_mg", "src-usda", "asrt-1", base.Add(-time.Hour))
	err := store.AppendAssertion(ctx, backdated, "asrt-1")
	if apperrors.CodeOf(err) != apperrors.CodeAssertionLineageOrder {
		t.Fatalf("AppendAssertion(backdated) code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeAssertionLineageOrder)
	}
}

func TestAppendAssertionClosesRelationshipVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	opened := base
	first := testAssertion("asrt-1", "ent-1", "child_of", "src-manual", "", base)
	first.Value = assertion.TextValue("genus-spinacia")
	first.ValidFrom = &opened

	reopened := base.Add(48 * time.Hour)
	second := testAssertion("asrt-2", "ent-1", "child_of", "src-manual", "asrt-1", reopened)
	second.Value = assertion.TextValue("genus-amaranthus")
	second.ValidFrom = &reopened

	if err := store.AppendAssertion(ctx, first, ""); err != nil {
		t.Fatalf("AppendAssertion(first) error = %v", err)
	}
	if err := store.AppendAssertion(ctx, second, "asrt-1"); err != nil {
		t.Fatalf("AppendAssertion(second) error = %v", err)
	}

	closed, err := store.GetAssertion(ctx, "asrt-1")
	if err != nil {
		t.Fatalf("GetAssertion() error = %v", err)
	}
	if closed.ValidTo == nil || !closed.ValidTo.Equal(reopened) {
		t.Errorf("ValidTo = %v, want %v", closed.ValidTo, reopened)
	}
	if closed.Value.Text != "genus-spinacia" {
		t.Errorf("Value.Text = %q, want genus-spinacia", closed.Value.Text)
	}
}

func TestListLineagePagination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	previous := ""
	for i, id := range []string{"asrt-1", "asrt-2", "asrt-3"} {
		a := testAssertion(id, "ent-1", "iron_mg", "src-usda", previous, base.Add(time.Duration(i)*time.Hour))
		if err := store.AppendAssertion(ctx, a, previous); err != nil {
			t.Fatalf("AppendAssertion(%s) error = %v", id, err)
		}
		previous = id
	}

	first, err := store.ListLineage(ctx, "ent-1", "iron_mg", 2, "")
	if err != nil {
		t.Fatalf("ListLineage() error = %v", err)
	}
	if len(first.Assertions) != 2 || first.Assertions[0].ID != "asrt-3" || first.Assertions[1].ID != "asrt-2" {
		t.Fatalf("first page = %v, want newest-first [asrt-3 asrt-2]", first.Assertions)
	}
	if first.NextPageToken == "" {
		t.Fatal("first page token is empty, want resume token")
	}

	second, err := store.ListLineage(ctx, "ent-1", "iron_mg", 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("ListLineage(page 2) error = %v", err)
	}
	if len(second.Assertions) != 1 || second.Assertions[0].ID != "asrt-1" {
		t.Errorf("second page = %v, want [asrt-1]", second.Assertions)
	}
	if second.NextPageToken != "" {
		t.Errorf("second page token = %q, want empty", second.NextPageToken)
	}
}

func TestListHeadsNewestPerSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	chain := []struct {
		id     string
		source string
	}{
		{"asrt-1", "src-usda"},
		{"asrt-2", "src-ciqual"},
		{"asrt-3", "src-usda"},
	}
	previous := ""
	for i, link := range chain {
		a := testAssertion(link.id, "ent-1", "iron_mg", link.source, previous, base.Add(time.Duration(i)*time.Hour))
		if err := store.AppendAssertion(ctx, a, previous); err != nil {
			t.Fatalf("AppendAssertion(%s) error = %v", link.id, err)
		}
		previous = link.id
	}

	heads, err := store.ListHeads(ctx, "ent-1", "iron_mg")
	if err != nil {
		t.Fatalf("ListHeads() error = %v", err)
	}
	if len(heads) != 2 {
		t.Fatalf("ListHeads() = %d heads, want 2", len(heads))
	}
	if heads[0].SourceID != "src-ciqual" || heads[0].ID != "asrt-2" {
		t.Errorf("heads[0] = %+v, want asrt-2 from src-ciqual", heads[0])
	}
	if heads[1].SourceID != "src-usda" || heads[1].ID != "asrt-3" {
		t.Errorf("heads[1] = %+v, want asrt-3 from src-usda", heads[1])
	}

	attributes, err := store.ListAttributes(ctx, "ent-1")
	if err != nil {
		t.Fatalf("ListAttributes() error = %v", err)
	}
	if len(attributes) != 1 || attributes[0] != "iron_mg" {
		t.Errorf("ListAttributes() = %v, want [iron_mg]", attributes)
	}
}

func TestSourceMetricsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	verified := now.Add(-24 * time.Hour)
	src := source.Source{
		ID:             "src-usda",
		Kind:           source.KindDatabase,
		Name:           "USDA FoodData Central",
		URL:            "https://fdc.nal.usda.gov",
		Verification:   source.VerificationVerified,
		LastVerifiedAt: &verified,
		License:        "CC0-1.0",
		Extensions:     map[string]string{"release": "2026-02"},
		Metrics:        source.NeutralMetrics(now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.PutSource(ctx, src); err != nil {
		t.Fatalf("PutSource() error = %v", err)
	}

	metrics := source.NeutralMetrics(now.Add(time.Hour))
	metrics.Accuracy = 0.92
	metrics.Overall = 0.81
	metrics.SampleCount = 7
	metrics.InsufficientHistory = false
	if err := store.PutSourceMetrics(ctx, "src-usda", metrics); err != nil {
		t.Fatalf("PutSourceMetrics() error = %v", err)
	}

	got, err := store.GetSource(ctx, "src-usda")
	if err != nil {
		t.Fatalf("GetSource() error = %v", err)
	}
	if got.Metrics.Accuracy != 0.92 || got.Metrics.Overall != 0.81 || got.Metrics.SampleCount != 7 {
		t.Errorf("Metrics = %+v, want updated snapshot", got.Metrics)
	}
	if got.Metrics.InsufficientHistory {
		t.Error("InsufficientHistory = true, want false")
	}
	if got.Extensions["release"] != "2026-02" {
		t.Errorf("Extensions = %v, want release key preserved", got.Extensions)
	}
	if got.LastVerifiedAt == nil || !got.LastVerifiedAt.Equal(verified) {
		t.Errorf("LastVerifiedAt = %v, want %v", got.LastVerifiedAt, verified)
	}

	if err := store.PutSourceMetrics(ctx, "ghost", metrics); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("PutSourceMetrics(missing) error = %v, want ErrNotFound", err)
	}
}

func TestValidationEventsBySource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []validation.Event{
		{
			ID:        "evt-1",
			EntityID:  "ent-1",
			Status:    entity.StatusApproved,
			Timestamp: base,
			ActorType: validation.ActorTypeReviewer,
			SourceIDs: []string{"src-usda", "src-ciqual"},
		},
		{
			ID:        "evt-2",
			EntityID:  "ent-2",
			Status:    entity.StatusRejected,
			Timestamp: base.Add(time.Hour),
			ActorType: validation.ActorTypeReviewer,
			SourceIDs: []string{"src-usda"},
		},
		{
			ID:        "evt-3",
			EntityID:  "ent-1",
			Status:    entity.StatusNeedsRevision,
			Timestamp: base.Add(2 * time.Hour),
			ActorType: validation.ActorTypeSystem,
			SourceIDs: []string{"src-ciqual"},
		},
	}
	for _, e := range events {
		if err := store.AppendValidationEvent(ctx, e); err != nil {
			t.Fatalf("AppendValidationEvent(%s) error = %v", e.ID, err)
		}
	}

	bySource, err := store.ListValidationEventsBySource(ctx, "src-usda")
	if err != nil {
		t.Fatalf("ListValidationEventsBySource() error = %v", err)
	}
	if len(bySource) != 2 || bySource[0].ID != "evt-2" || bySource[1].ID != "evt-1" {
		t.Errorf("by source = %v, want newest-first [evt-2 evt-1]", bySource)
	}

	byEntity, err := store.ListValidationEventsByEntity(ctx, "ent-1")
	if err != nil {
		t.Fatalf("ListValidationEventsByEntity() error = %v", err)
	}
	if len(byEntity) != 2 || byEntity[0].ID != "evt-3" || byEntity[1].ID != "evt-1" {
		t.Errorf("by entity = %v, want newest-first [evt-3 evt-1]", byEntity)
	}
	if byEntity[0].ActorType != validation.ActorTypeSystem {
		t.Errorf("ActorType = %v, want %v", byEntity[0].ActorType, validation.ActorTypeSystem)
	}
}

func TestCrossRefResultsBySource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	results := []crossref.Result{
		{
			ID: "xref-1", EntityID: "ent-1", Attribute: "iron_mg", SourceID: "src-ai",
			Value: 30, ConsensusMedian: 12.5, Deviation: 1.4, SampleCount: 2,
			Divergent: true, ComparedAt: base,
		},
		{
			ID: "xref-2", EntityID: "ent-1", Attribute: "iron_mg", SourceID: "src-ai",
			Value: 12.6, ConsensusMedian: 12.5, Deviation: 0.008, SampleCount: 2,
			Divergent: false, ComparedAt: base.Add(time.Hour),
		},
	}
	for _, r := range results {
		if err := store.AppendCrossRefResult(ctx, r); err != nil {
			t.Fatalf("AppendCrossRefResult(%s) error = %v", r.ID, err)
		}
	}

	got, err := store.ListCrossRefResultsBySource(ctx, "src-ai")
	if err != nil {
		t.Fatalf("ListCrossRefResultsBySource() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "xref-2" || got[1].ID != "xref-1" {
		t.Fatalf("results = %v, want newest-first [xref-2 xref-1]", got)
	}
	if !got[1].Divergent || got[0].Divergent {
		t.Errorf("Divergent flags = %v/%v, want xref-1 divergent only", got[1].Divergent, got[0].Divergent)
	}
}

func TestListPendingAssignmentsOrderAndPaging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assignments := []review.Assignment{
		{ID: "asg-low", EntityID: "ent-1", ReviewerID: "rev-1", AssignedAt: base, Priority: review.PriorityLow, Status: review.StatusPending},
		{ID: "asg-high", EntityID: "ent-2", ReviewerID: "rev-1", AssignedAt: base.Add(time.Hour), Priority: review.PriorityHigh, Status: review.StatusPending},
		{ID: "asg-normal", EntityID: "ent-3", ReviewerID: "rev-1", AssignedAt: base.Add(2 * time.Hour), Priority: review.PriorityNormal, Status: review.StatusPending},
		{ID: "asg-done", EntityID: "ent-4", ReviewerID: "rev-1", AssignedAt: base, Priority: review.PriorityHigh, Status: review.StatusCompleted},
		{ID: "asg-other", EntityID: "ent-5", ReviewerID: "rev-2", AssignedAt: base, Priority: review.PriorityHigh, Status: review.StatusPending},
	}
	for _, a := range assignments {
		if err := store.PutAssignment(ctx, a); err != nil {
			t.Fatalf("PutAssignment(%s) error = %v", a.ID, err)
		}
	}

	first, err := store.ListPendingAssignments(ctx, "rev-1", 2, "")
	if err != nil {
		t.Fatalf("ListPendingAssignments() error = %v", err)
	}
	if len(first.Assignments) != 2 || first.Assignments[0].ID != "asg-high" || first.Assignments[1].ID != "asg-normal" {
		t.Fatalf("first page = %v, want [asg-high asg-normal]", first.Assignments)
	}
	if first.NextPageToken == "" {
		t.Fatal("first page token is empty, want resume token")
	}

	second, err := store.ListPendingAssignments(ctx, "rev-1", 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("ListPendingAssignments(page 2) error = %v", err)
	}
	if len(second.Assignments) != 1 || second.Assignments[0].ID != "asg-low" {
		t.Errorf("second page = %v, want [asg-low]", second.Assignments)
	}
}

func TestAuditEventsFilterAndPaging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []storage.AuditEvent{
		{Timestamp: base, Severity: "INFO", Operation: "ledger.assert", EntityID: "ent-1", Message: "value asserted"},
		{Timestamp: base.Add(time.Hour), Severity: "ERROR", Operation: "workflow.transition", EntityID: "ent-1", Code: "ENTITY_INVALID_STATUS_TRANSITION", Message: "transition rejected"},
		{Timestamp: base.Add(2 * time.Hour), Severity: "INFO", Operation: "ledger.assert", EntityID: "ent-2", Message: "value asserted"},
	}
	for _, e := range events {
		if err := store.AppendAuditEvent(ctx, e); err != nil {
			t.Fatalf("AppendAuditEvent() error = %v", err)
		}
	}

	all, err := store.ListAuditEvents(ctx, "", 10, "")
	if err != nil {
		t.Fatalf("ListAuditEvents() error = %v", err)
	}
	if len(all.Events) != 3 || all.Events[0].EntityID != "ent-2" {
		t.Fatalf("events = %v, want 3 newest-first", all.Events)
	}

	filtered, err := store.ListAuditEvents(ctx, `severity = "ERROR"`, 10, "")
	if err != nil {
		t.Fatalf("ListAuditEvents(filter) error = %v", err)
	}
	if len(filtered.Events) != 1 || filtered.Events[0].Operation != "workflow.transition" {
		t.Errorf("filtered = %v, want the workflow failure", filtered.Events)
	}

	firstPage, err := store.ListAuditEvents(ctx, `operation = "ledger.assert"`, 1, "")
	if err != nil {
		t.Fatalf("ListAuditEvents(page 1) error = %v", err)
	}
	if len(firstPage.Events) != 1 || firstPage.NextPageToken == "" {
		t.Fatalf("page 1 = %v token %q, want one event and a token", firstPage.Events, firstPage.NextPageToken)
	}

	secondPage, err := store.ListAuditEvents(ctx, `operation = "ledger.assert"`, 1, firstPage.NextPageToken)
	if err != nil {
		t.Fatalf("ListAuditEvents(page 2) error = %v", err)
	}
	if len(secondPage.Events) != 1 || secondPage.Events[0].EntityID != "ent-1" {
		t.Errorf("page 2 = %v, want the older ledger event", secondPage.Events)
	}

	_, err = store.ListAuditEvents(ctx, `severity = "ERROR"`, 1, firstPage.NextPageToken)
	if apperrors.CodeOf(err) != apperrors.CodeCursorInvalid {
		t.Fatalf("ListAuditEvents(mismatched filter) code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeCursorInvalid)
	}

	_, err = store.ListAuditEvents(ctx, `bogus = "x"`, 1, "")
	if apperrors.CodeOf(err) != apperrors.CodeFilterInvalid {
		t.Fatalf("ListAuditEvents(bad filter) code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeFilterInvalid)
	}
}

func TestExpiredDeadlineReportsUnavailable(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := store.GetEntity(ctx, "ent-1")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("GetEntity(expired ctx) error = %v, want ErrUnavailable", err)
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeStorageUnavailable {
		t.Errorf("CodeOf() = %v, want %v", code, apperrors.CodeStorageUnavailable)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("GetEntity(expired ctx) error should preserve the deadline cause")
	}
}

func TestCancelledContextPassesThrough(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetEntity(ctx, "ent-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("GetEntity(cancelled ctx) error = %v, want context.Canceled", err)
	}
	if errors.Is(err, storage.ErrUnavailable) {
		t.Error("cancellation should not read as storage unavailability")
	}
}

func TestStoreErrClassifiesDeadline(t *testing.T) {
	t.Parallel()
	err := storeErr("get entity", fmt.Errorf("query: %w", context.DeadlineExceeded))
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("storeErr(deadline) error = %v, want ErrUnavailable", err)
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeStorageUnavailable {
		t.Errorf("CodeOf() = %v, want %v", code, apperrors.CodeStorageUnavailable)
	}

	plain := storeErr("get entity", errors.New("disk is full"))
	if errors.Is(plain, storage.ErrUnavailable) {
		t.Error("storeErr(plain) should not read as storage unavailability")
	}
}
