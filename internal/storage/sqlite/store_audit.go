package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/storage/cursor"
	"github.com/vitalyst/provenance/internal/storage/filter"
)

// AppendAuditEvent appends an operational audit record.
func (s *Store) AppendAuditEvent(ctx context.Context, e storage.AuditEvent) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO audit_events (timestamp, severity, operation, entity_id, source_id, code, message)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		toMillis(e.Timestamp), e.Severity, e.Operation,
		e.EntityID, e.SourceID, e.Code, e.Message,
	)
	if err != nil {
		return storeErr("append audit event", err)
	}
	return nil
}

// ListAuditEvents returns a page of audit events, newest first, optionally
// narrowed by an AIP-160 filter expression.
func (s *Store) ListAuditEvents(ctx context.Context, filterStr string, pageSize int, pageToken string) (storage.AuditPage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.AuditPage{}, err
	}
	if err := s.ready(); err != nil {
		return storage.AuditPage{}, err
	}

	condition, err := filter.ParseAuditFilter(filterStr)
	if err != nil {
		return storage.AuditPage{}, apperrors.Wrap(apperrors.CodeFilterInvalid, "invalid audit filter", err)
	}

	query := `
SELECT id, timestamp, severity, operation, entity_id, source_id, code, message
FROM audit_events`
	var (
		clauses []string
		args    []any
	)
	if condition.Clause != "" {
		clauses = append(clauses, condition.Clause)
		args = append(args, condition.Params...)
	}

	if pageToken != "" {
		c, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.AuditPage{}, apperrors.Wrap(apperrors.CodeCursorInvalid, "invalid page token", err)
		}
		if err := cursor.ValidateFilterHash(c, filterStr); err != nil {
			return storage.AuditPage{}, apperrors.Wrap(apperrors.CodeCursorInvalid, "invalid page token", err)
		}
		lastMillis, lastID, err := decodeAuditKey(c.Key)
		if err != nil {
			return storage.AuditPage{}, apperrors.Wrap(apperrors.CodeCursorInvalid, "invalid page token", err)
		}
		clauses = append(clauses, `(timestamp < ? OR (timestamp = ? AND id < ?))`)
		args = append(args, lastMillis, lastMillis, lastID)
	}

	if len(clauses) > 0 {
		query += "\nWHERE " + strings.Join(clauses, " AND ")
	}
	size := normalizePageSize(pageSize)
	query += "\nORDER BY timestamp DESC, id DESC\nLIMIT ?"
	args = append(args, size+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.AuditPage{}, storeErr("list audit events", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		page storage.AuditPage
		keys []string
	)
	for rows.Next() {
		var (
			e         storage.AuditEvent
			rowID     int64
			timestamp int64
		)
		err := rows.Scan(&rowID, &timestamp, &e.Severity, &e.Operation,
			&e.EntityID, &e.SourceID, &e.Code, &e.Message)
		if err != nil {
			return storage.AuditPage{}, storeErr("scan audit event", err)
		}
		e.Timestamp = fromMillis(timestamp)
		page.Events = append(page.Events, e)
		keys = append(keys, encodeAuditKey(timestamp, rowID))
	}
	if err := rows.Err(); err != nil {
		return storage.AuditPage{}, storeErr("list audit events", err)
	}

	if len(page.Events) > size {
		page.Events = page.Events[:size]
		token, err := cursor.Encode(cursor.New(keys[size-1], filterStr))
		if err != nil {
			return storage.AuditPage{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func encodeAuditKey(millis, rowID int64) string {
	return strconv.FormatInt(millis, 10) + ":" + strconv.FormatInt(rowID, 10)
}

func decodeAuditKey(key string) (millis, rowID int64, err error) {
	before, after, ok := strings.Cut(key, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed audit resume key")
	}
	millis, err = strconv.ParseInt(before, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed audit resume key: %w", err)
	}
	rowID, err = strconv.ParseInt(after, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed audit resume key: %w", err)
	}
	return millis, rowID, nil
}
