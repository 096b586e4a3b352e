package validation

import (
	"testing"
	"time"

	"github.com/vitalyst/provenance/internal/domain/entity"
)

func TestNewDefaultsToReviewerActor(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.July, 5, 14, 0, 0, 0, time.UTC)
	got, err := New(Input{
		EntityID:        " e1 ",
		Status:          entity.StatusApproved,
		ReviewerID:      "rev-1",
		ConfidenceScore: 0.95,
	}, func() time.Time { return now }, func() (string, error) { return "ve-1", nil })
	if err != nil {
		t.Fatalf("new event: %v", err)
	}

	if got.EntityID != "e1" {
		t.Fatalf("entity id = %q, want trimmed", got.EntityID)
	}
	if got.ActorType != ActorTypeReviewer {
		t.Fatalf("actor type = %q, want reviewer", got.ActorType)
	}
	if !got.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, now)
	}
	if !got.Approved() {
		t.Fatal("expected approval outcome")
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	if _, err := New(Input{Status: entity.StatusApproved}, nil, nil); err == nil {
		t.Fatal("expected error for missing entity id")
	}
	if _, err := New(Input{EntityID: "e1"}, nil, nil); err == nil {
		t.Fatal("expected error for missing status")
	}
	if _, err := New(Input{EntityID: "e1", Status: entity.StatusApproved, ConfidenceScore: 1.5}, nil, nil); err == nil {
		t.Fatal("expected error for out-of-range confidence")
	}
}

func TestRejectionOutcomes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status entity.Status
		want   bool
	}{
		{entity.StatusRejected, true},
		{entity.StatusNeedsRevision, true},
		{entity.StatusApproved, false},
		{entity.StatusInReview, false},
	}
	for _, tc := range cases {
		e := Event{Status: tc.status}
		if got := e.Rejection(); got != tc.want {
			t.Errorf("%s rejection = %v, want %v", tc.status.Label(), got, tc.want)
		}
	}
}
