package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vitalyst/provenance/internal/domain/source"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/storage/cursor"
)

const sourceColumns = `id, kind, name, url, verification, last_verified_at,
	license, notes, extensions, metrics, created_at, updated_at`

// PutSource inserts or replaces a source record.
func (s *Store) PutSource(ctx context.Context, src source.Source) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(src.ID) == "" {
		return apperrors.New(apperrors.CodeSourceEmptyName, "source id is required")
	}

	extensions, err := encodeStringMap(src.Extensions)
	if err != nil {
		return err
	}
	metrics, err := encodeMetrics(src.Metrics)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sources (
	id, kind, name, url, verification, last_verified_at,
	license, notes, extensions, metrics, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kind = excluded.kind,
	name = excluded.name,
	url = excluded.url,
	verification = excluded.verification,
	last_verified_at = excluded.last_verified_at,
	license = excluded.license,
	notes = excluded.notes,
	extensions = excluded.extensions,
	metrics = excluded.metrics,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at
`,
		src.ID, int(src.Kind), src.Name, src.URL, int(src.Verification),
		toNullMillis(src.LastVerifiedAt), src.License, src.Notes,
		extensions, metrics, toMillis(src.CreatedAt), toMillis(src.UpdatedAt),
	)
	if err != nil {
		return storeErr("put source", err)
	}
	return nil
}

// GetSource retrieves a source by id.
func (s *Store) GetSource(ctx context.Context, id string) (source.Source, error) {
	if err := ctxErr(ctx); err != nil {
		return source.Source{}, err
	}
	if err := s.ready(); err != nil {
		return source.Source{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row.Scan)
}

// ListSources returns a page of sources ordered by id.
func (s *Store) ListSources(ctx context.Context, pageSize int, pageToken string) (storage.SourcePage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.SourcePage{}, err
	}
	if err := s.ready(); err != nil {
		return storage.SourcePage{}, err
	}

	afterID, err := decodeKeysetToken(pageToken)
	if err != nil {
		return storage.SourcePage{}, err
	}
	size := normalizePageSize(pageSize)

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, size+1)
	if err != nil {
		return storage.SourcePage{}, storeErr("list sources", err)
	}
	defer func() { _ = rows.Close() }()

	var page storage.SourcePage
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return storage.SourcePage{}, err
		}
		page.Sources = append(page.Sources, src)
	}
	if err := rows.Err(); err != nil {
		return storage.SourcePage{}, storeErr("list sources", err)
	}

	if len(page.Sources) > size {
		page.Sources = page.Sources[:size]
		token, err := cursor.Encode(cursor.New(page.Sources[size-1].ID, ""))
		if err != nil {
			return storage.SourcePage{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// PutSourceMetrics replaces the reliability snapshot of an existing source.
func (s *Store) PutSourceMetrics(ctx context.Context, sourceID string, m source.Metrics) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	metrics, err := encodeMetrics(m)
	if err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sources SET metrics = ? WHERE id = ?`, metrics, sourceID)
	if err != nil {
		return storeErr("put source metrics", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("put source metrics", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// metricsRecord is the persisted shape of a reliability snapshot.
type metricsRecord struct {
	Accuracy            float64 `json:"accuracy"`
	Consistency         float64 `json:"consistency"`
	Freshness           float64 `json:"freshness"`
	Verification        float64 `json:"verification"`
	Authority           float64 `json:"authority"`
	CrossReference      float64 `json:"cross_reference"`
	Overall             float64 `json:"overall"`
	SampleCount         int     `json:"sample_count"`
	InsufficientHistory bool    `json:"insufficient_history"`
	ComputedAt          int64   `json:"computed_at"`
}

func encodeMetrics(m source.Metrics) (string, error) {
	raw, err := json.Marshal(metricsRecord{
		Accuracy:            m.Accuracy,
		Consistency:         m.Consistency,
		Freshness:           m.Freshness,
		Verification:        m.Verification,
		Authority:           m.Authority,
		CrossReference:      m.CrossReference,
		Overall:             m.Overall,
		SampleCount:         m.SampleCount,
		InsufficientHistory: m.InsufficientHistory,
		ComputedAt:          toMillis(m.ComputedAt),
	})
	if err != nil {
		return "", fmt.Errorf("encode metrics: %w", err)
	}
	return string(raw), nil
}

func decodeMetrics(raw string) (source.Metrics, error) {
	var record metricsRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return source.Metrics{}, fmt.Errorf("decode metrics: %w", err)
	}
	return source.Metrics{
		Accuracy:            record.Accuracy,
		Consistency:         record.Consistency,
		Freshness:           record.Freshness,
		Verification:        record.Verification,
		Authority:           record.Authority,
		CrossReference:      record.CrossReference,
		Overall:             record.Overall,
		SampleCount:         record.SampleCount,
		InsufficientHistory: record.InsufficientHistory,
		ComputedAt:          fromMillis(record.ComputedAt),
	}, nil
}

func encodeStringMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode string map: %w", err)
	}
	return string(raw), nil
}

func decodeStringMap(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode string map: %w", err)
	}
	return m, nil
}

func scanSource(scan func(dest ...any) error) (source.Source, error) {
	var (
		src            source.Source
		kind           int
		verification   int
		lastVerifiedAt sql.NullInt64
		extensionsRaw  string
		metricsRaw     string
		createdAt      int64
		updatedAt      int64
	)
	err := scan(
		&src.ID, &kind, &src.Name, &src.URL, &verification, &lastVerifiedAt,
		&src.License, &src.Notes, &extensionsRaw, &metricsRaw, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return source.Source{}, storage.ErrNotFound
	}
	if err != nil {
		return source.Source{}, storeErr("scan source", err)
	}

	extensions, err := decodeStringMap(extensionsRaw)
	if err != nil {
		return source.Source{}, err
	}
	metrics, err := decodeMetrics(metricsRaw)
	if err != nil {
		return source.Source{}, err
	}
	src.Kind = source.Kind(kind)
	src.Verification = source.Verification(verification)
	src.LastVerifiedAt = fromNullMillis(lastVerifiedAt)
	src.Extensions = extensions
	src.Metrics = metrics
	src.CreatedAt = fromMillis(createdAt)
	src.UpdatedAt = fromMillis(updatedAt)
	return src, nil
}
