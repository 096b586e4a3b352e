package filter

import (
	"testing"
	"time"
)

func TestParseAuditFilterEmpty(t *testing.T) {
	t.Parallel()
	cond, err := ParseAuditFilter("  ")
	if err != nil {
		t.Fatalf("ParseAuditFilter() error = %v", err)
	}
	if cond.Clause != "" || len(cond.Params) != 0 {
		t.Errorf("ParseAuditFilter(empty) = %+v, want empty condition", cond)
	}
}

func TestParseAuditFilterComparisons(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		filter     string
		wantClause string
		wantParams []any
	}{
		{
			name:       "equality",
			filter:     `operation = "ledger.assert"`,
			wantClause: "operation = ?",
			wantParams: []any{"ledger.assert"},
		},
		{
			name:       "not equal",
			filter:     `severity != "INFO"`,
			wantClause: "severity != ?",
			wantParams: []any{"INFO"},
		},
		{
			name:       "and",
			filter:     `severity = "ERROR" AND entity_id = "ent-1"`,
			wantClause: "(severity = ? AND entity_id = ?)",
			wantParams: []any{"ERROR", "ent-1"},
		},
		{
			name:       "or",
			filter:     `code = "NOT_FOUND" OR code = "CONCURRENCY_CONFLICT"`,
			wantClause: "(code = ? OR code = ?)",
			wantParams: []any{"NOT_FOUND", "CONCURRENCY_CONFLICT"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cond, err := ParseAuditFilter(tt.filter)
			if err != nil {
				t.Fatalf("ParseAuditFilter(%q) error = %v", tt.filter, err)
			}
			if cond.Clause != tt.wantClause {
				t.Errorf("Clause = %q, want %q", cond.Clause, tt.wantClause)
			}
			if len(cond.Params) != len(tt.wantParams) {
				t.Fatalf("Params = %v, want %v", cond.Params, tt.wantParams)
			}
			for i, p := range tt.wantParams {
				if cond.Params[i] != p {
					t.Errorf("Params[%d] = %v, want %v", i, cond.Params[i], p)
				}
			}
		})
	}
}

func TestParseAuditFilterTimestamp(t *testing.T) {
	t.Parallel()
	cond, err := ParseAuditFilter(`ts >= timestamp("2026-03-01T00:00:00Z")`)
	if err != nil {
		t.Fatalf("ParseAuditFilter() error = %v", err)
	}
	if cond.Clause != "timestamp >= ?" {
		t.Errorf("Clause = %q, want timestamp >= ?", cond.Clause)
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if len(cond.Params) != 1 || cond.Params[0] != want {
		t.Errorf("Params = %v, want [%d]", cond.Params, want)
	}
}

func TestParseAuditFilterRejectsUnknownField(t *testing.T) {
	t.Parallel()
	if _, err := ParseAuditFilter(`reviewer = "rev-1"`); err == nil {
		t.Fatal("ParseAuditFilter(unknown field) error = nil, want error")
	}
}
