package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vitalyst/provenance/internal/domain/entity"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/storage/cursor"
)

const defaultPageSize = 50

const entityColumns = `id, kind, name, description, status, version, parent_ids,
	propagated_from, propagated_by, propagated_at, created_at, updated_at, archived_at`

// PutEntity inserts or replaces an entity record.
func (s *Store) PutEntity(ctx context.Context, e entity.Entity) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(e.ID) == "" {
		return apperrors.New(apperrors.CodeEntityEmptyID, "entity id is required")
	}

	parents, err := encodeStrings(e.ParentIDs)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO entities (
	id, kind, name, description, status, version, parent_ids,
	propagated_from, propagated_by, propagated_at, created_at, updated_at, archived_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kind = excluded.kind,
	name = excluded.name,
	description = excluded.description,
	status = excluded.status,
	version = excluded.version,
	parent_ids = excluded.parent_ids,
	propagated_from = excluded.propagated_from,
	propagated_by = excluded.propagated_by,
	propagated_at = excluded.propagated_at,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at,
	archived_at = excluded.archived_at
`,
		e.ID, int(e.Kind), e.Name, e.Description, int(e.Status), e.Version, parents,
		e.PropagatedFrom, e.PropagatedBy, toNullMillis(e.PropagatedAt),
		toMillis(e.CreatedAt), toMillis(e.UpdatedAt), toNullMillis(e.ArchivedAt),
	)
	if err != nil {
		return storeErr("put entity", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_parents WHERE entity_id = ?`, e.ID); err != nil {
		return storeErr("clear entity parents", err)
	}
	for _, parentID := range e.ParentIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_parents (entity_id, parent_id) VALUES (?, ?)`,
			e.ID, parentID,
		); err != nil {
			return storeErr("put entity parent", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit entity", err)
	}
	return nil
}

// GetEntity retrieves an entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (entity.Entity, error) {
	if err := ctxErr(ctx); err != nil {
		return entity.Entity{}, err
	}
	if err := s.ready(); err != nil {
		return entity.Entity{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return scanEntity(row.Scan)
}

// UpdateEntityStatus conditionally replaces an entity record. The write
// succeeds only when the stored version matches expectedVersion.
func (s *Store) UpdateEntityStatus(ctx context.Context, e entity.Entity, expectedVersion int64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE entities SET
	status = ?,
	version = ?,
	propagated_from = ?,
	propagated_by = ?,
	propagated_at = ?,
	updated_at = ?,
	archived_at = ?
WHERE id = ? AND version = ?
`,
		int(e.Status), e.Version,
		e.PropagatedFrom, e.PropagatedBy, toNullMillis(e.PropagatedAt),
		toMillis(e.UpdatedAt), toNullMillis(e.ArchivedAt),
		e.ID, expectedVersion,
	)
	if err != nil {
		return storeErr("update entity status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("update entity status", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM entities WHERE id = ?`, e.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return storeErr("check entity", err)
	}
	return storage.ErrVersionConflict
}

// ListChildren returns direct children of parentID, ordered by id.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]entity.Entity, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+prefixedColumns("e", entityColumns)+`
FROM entities e
JOIN entity_parents p ON p.entity_id = e.id
WHERE p.parent_id = ?
ORDER BY e.id
`, parentID)
	if err != nil {
		return nil, storeErr("list children", err)
	}
	defer func() { _ = rows.Close() }()

	var children []entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list children", err)
	}
	return children, nil
}

// ListEntities returns a page of entities ordered by id.
func (s *Store) ListEntities(ctx context.Context, pageSize int, pageToken string) (storage.EntityPage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.EntityPage{}, err
	}
	if err := s.ready(); err != nil {
		return storage.EntityPage{}, err
	}

	afterID, err := decodeKeysetToken(pageToken)
	if err != nil {
		return storage.EntityPage{}, err
	}
	size := normalizePageSize(pageSize)

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, size+1)
	if err != nil {
		return storage.EntityPage{}, storeErr("list entities", err)
	}
	defer func() { _ = rows.Close() }()

	var page storage.EntityPage
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return storage.EntityPage{}, err
		}
		page.Entities = append(page.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return storage.EntityPage{}, storeErr("list entities", err)
	}

	if len(page.Entities) > size {
		page.Entities = page.Entities[:size]
		token, err := cursor.Encode(cursor.New(page.Entities[size-1].ID, ""))
		if err != nil {
			return storage.EntityPage{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// prefixedColumns qualifies a column list with a table alias for joins.
func prefixedColumns(alias, columnList string) string {
	columns := strings.Split(columnList, ",")
	for i, column := range columns {
		columns[i] = alias + "." + strings.TrimSpace(column)
	}
	return strings.Join(columns, ", ")
}

func scanEntity(scan func(dest ...any) error) (entity.Entity, error) {
	var (
		e            entity.Entity
		kind         int
		status       int
		parentsRaw   string
		propagatedAt sql.NullInt64
		createdAt    int64
		updatedAt    int64
		archivedAt   sql.NullInt64
	)
	err := scan(
		&e.ID, &kind, &e.Name, &e.Description, &status, &e.Version, &parentsRaw,
		&e.PropagatedFrom, &e.PropagatedBy, &propagatedAt, &createdAt, &updatedAt, &archivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Entity{}, storage.ErrNotFound
	}
	if err != nil {
		return entity.Entity{}, storeErr("scan entity", err)
	}

	parents, err := decodeStrings(parentsRaw)
	if err != nil {
		return entity.Entity{}, err
	}
	e.Kind = entity.Kind(kind)
	e.Status = entity.Status(status)
	e.ParentIDs = parents
	e.PropagatedAt = fromNullMillis(propagatedAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	e.ArchivedAt = fromNullMillis(archivedAt)
	return e, nil
}

func normalizePageSize(pageSize int) int {
	if pageSize <= 0 {
		return defaultPageSize
	}
	return pageSize
}

// decodeKeysetToken extracts the resume key from a page token.
func decodeKeysetToken(pageToken string) (string, error) {
	if pageToken == "" {
		return "", nil
	}
	c, err := cursor.Decode(pageToken)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeCursorInvalid, "invalid page token", err)
	}
	return c.Key, nil
}
