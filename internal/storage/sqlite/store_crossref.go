package sqlite

import (
	"context"

	"github.com/vitalyst/provenance/internal/domain/crossref"
)

// AppendCrossRefResult appends a comparison result.
func (s *Store) AppendCrossRefResult(ctx context.Context, r crossref.Result) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO crossref_results (
	id, entity_id, attribute, assertion_id, source_id, value,
	consensus_median, deviation, sample_count, divergent, compared_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		r.ID, r.EntityID, r.Attribute, r.AssertionID, r.SourceID, r.Value,
		r.ConsensusMedian, r.Deviation, r.SampleCount, boolToInt(r.Divergent),
		toMillis(r.ComparedAt),
	)
	if err != nil {
		return storeErr("append crossref result", err)
	}
	return nil
}

// ListCrossRefResultsBySource returns results for a source, newest first.
func (s *Store) ListCrossRefResultsBySource(ctx context.Context, sourceID string) ([]crossref.Result, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, entity_id, attribute, assertion_id, source_id, value,
	consensus_median, deviation, sample_count, divergent, compared_at
FROM crossref_results
WHERE source_id = ?
ORDER BY compared_at DESC, id DESC
`, sourceID)
	if err != nil {
		return nil, storeErr("list crossref results", err)
	}
	defer func() { _ = rows.Close() }()

	var results []crossref.Result
	for rows.Next() {
		var (
			r          crossref.Result
			divergent  int
			comparedAt int64
		)
		err := rows.Scan(
			&r.ID, &r.EntityID, &r.Attribute, &r.AssertionID, &r.SourceID, &r.Value,
			&r.ConsensusMedian, &r.Deviation, &r.SampleCount, &divergent, &comparedAt,
		)
		if err != nil {
			return nil, storeErr("scan crossref result", err)
		}
		r.Divergent = divergent != 0
		r.ComparedAt = fromMillis(comparedAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list crossref results", err)
	}
	return results, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
