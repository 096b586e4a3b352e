package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/storage/cursor"
)

const assertionColumns = `id, entity_id, attribute, value, source_id, confidence,
	asserted_at, previous_id, valid_from, valid_to`

// AppendAssertion appends an assertion to the (entity, attribute) lineage.
// The write succeeds only when the stored head matches expectedHeadID; a
// relationship assertion closes the previous open validity window.
func (s *Store) AppendAssertion(ctx context.Context, a assertion.Assertion, expectedHeadID string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	value, err := json.Marshal(a.Value)
	if err != nil {
		return fmt.Errorf("encode assertion value: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var headID string
	err = tx.QueryRowContext(ctx,
		`SELECT assertion_id FROM assertion_heads WHERE entity_id = ? AND attribute = ?`,
		a.EntityID, a.Attribute).Scan(&headID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storeErr("read head", err)
	}
	if headID != expectedHeadID {
		return storage.ErrHeadConflict
	}

	if headID != "" {
		var (
			prevAssertedAt int64
			prevValidFrom  sql.NullInt64
			prevValidTo    sql.NullInt64
		)
		err = tx.QueryRowContext(ctx,
			`SELECT asserted_at, valid_from, valid_to FROM assertions WHERE id = ?`,
			headID).Scan(&prevAssertedAt, &prevValidFrom, &prevValidTo)
		if err != nil {
			return storeErr("read head assertion", err)
		}
		if toMillis(a.AssertedAt) < prevAssertedAt {
			return apperrors.New(apperrors.CodeAssertionLineageOrder, "assertion predates the lineage head")
		}
		if a.ValidFrom != nil && prevValidFrom.Valid && !prevValidTo.Valid {
			if _, err := tx.ExecContext(ctx,
				`UPDATE assertions SET valid_to = ? WHERE id = ?`,
				toMillis(*a.ValidFrom), headID,
			); err != nil {
				return storeErr("close relationship version", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO assertions (
	id, entity_id, attribute, value, source_id, confidence,
	asserted_at, previous_id, valid_from, valid_to
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		a.ID, a.EntityID, a.Attribute, string(value), a.SourceID, a.Confidence,
		toMillis(a.AssertedAt), a.PreviousID, toNullMillis(a.ValidFrom), toNullMillis(a.ValidTo),
	)
	if err != nil {
		return storeErr("append assertion", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO assertion_heads (entity_id, attribute, assertion_id) VALUES (?, ?, ?)
ON CONFLICT(entity_id, attribute) DO UPDATE SET assertion_id = excluded.assertion_id
`, a.EntityID, a.Attribute, a.ID)
	if err != nil {
		return storeErr("advance head", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit assertion", err)
	}
	return nil
}

// GetAssertion retrieves an assertion by id.
func (s *Store) GetAssertion(ctx context.Context, id string) (assertion.Assertion, error) {
	if err := ctxErr(ctx); err != nil {
		return assertion.Assertion{}, err
	}
	if err := s.ready(); err != nil {
		return assertion.Assertion{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+assertionColumns+` FROM assertions WHERE id = ?`, id)
	return scanAssertion(row.Scan)
}

// GetHead returns the current head assertion for (entity, attribute).
func (s *Store) GetHead(ctx context.Context, entityID, attribute string) (assertion.Assertion, error) {
	if err := ctxErr(ctx); err != nil {
		return assertion.Assertion{}, err
	}
	if err := s.ready(); err != nil {
		return assertion.Assertion{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+prefixedColumns("a", assertionColumns)+`
FROM assertions a
JOIN assertion_heads h ON h.assertion_id = a.id
WHERE h.entity_id = ? AND h.attribute = ?
`, entityID, attribute)
	return scanAssertion(row.Scan)
}

// ListLineage walks the chain newest-first from the head or a page token.
func (s *Store) ListLineage(ctx context.Context, entityID, attribute string, pageSize int, pageToken string) (storage.AssertionPage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.AssertionPage{}, err
	}
	if err := s.ready(); err != nil {
		return storage.AssertionPage{}, err
	}

	var startID string
	if pageToken == "" {
		err := s.sqlDB.QueryRowContext(ctx,
			`SELECT assertion_id FROM assertion_heads WHERE entity_id = ? AND attribute = ?`,
			entityID, attribute).Scan(&startID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return storage.AssertionPage{}, storeErr("read head", err)
		}
	} else {
		c, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.AssertionPage{}, apperrors.Wrap(apperrors.CodeCursorInvalid, "invalid page token", err)
		}
		startID = c.Key
	}

	size := normalizePageSize(pageSize)
	var page storage.AssertionPage
	for id := startID; id != "" && len(page.Assertions) < size; {
		a, err := s.GetAssertion(ctx, id)
		if err != nil {
			return storage.AssertionPage{}, err
		}
		page.Assertions = append(page.Assertions, a)
		id = a.PreviousID
	}
	if n := len(page.Assertions); n == size {
		if next := page.Assertions[n-1].PreviousID; next != "" {
			token, err := cursor.Encode(cursor.New(next, ""))
			if err != nil {
				return storage.AssertionPage{}, err
			}
			page.NextPageToken = token
		}
	}
	return page, nil
}

// ListHeads returns the newest assertion per source for (entity, attribute),
// ordered by source id.
func (s *Store) ListHeads(ctx context.Context, entityID, attribute string) ([]assertion.Assertion, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+prefixedColumns("a", assertionColumns)+`
FROM assertions a
WHERE a.entity_id = ? AND a.attribute = ?
	AND a.id = (
		SELECT b.id FROM assertions b
		WHERE b.entity_id = a.entity_id
			AND b.attribute = a.attribute
			AND b.source_id = a.source_id
		ORDER BY b.asserted_at DESC, b.rowid DESC
		LIMIT 1
	)
ORDER BY a.source_id
`, entityID, attribute)
	if err != nil {
		return nil, storeErr("list heads", err)
	}
	defer func() { _ = rows.Close() }()

	var heads []assertion.Assertion
	for rows.Next() {
		a, err := scanAssertion(rows.Scan)
		if err != nil {
			return nil, err
		}
		heads = append(heads, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list heads", err)
	}
	return heads, nil
}

// ListAttributes returns every attribute name asserted for an entity.
func (s *Store) ListAttributes(ctx context.Context, entityID string) ([]string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT attribute FROM assertion_heads WHERE entity_id = ? ORDER BY attribute`,
		entityID)
	if err != nil {
		return nil, storeErr("list attributes", err)
	}
	defer func() { _ = rows.Close() }()

	var attributes []string
	for rows.Next() {
		var attribute string
		if err := rows.Scan(&attribute); err != nil {
			return nil, storeErr("scan attribute", err)
		}
		attributes = append(attributes, attribute)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list attributes", err)
	}
	return attributes, nil
}

func scanAssertion(scan func(dest ...any) error) (assertion.Assertion, error) {
	var (
		a          assertion.Assertion
		value      string
		assertedAt int64
		validFrom  sql.NullInt64
		validTo    sql.NullInt64
	)
	err := scan(
		&a.ID, &a.EntityID, &a.Attribute, &value, &a.SourceID, &a.Confidence,
		&assertedAt, &a.PreviousID, &validFrom, &validTo,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return assertion.Assertion{}, storage.ErrNotFound
	}
	if err != nil {
		return assertion.Assertion{}, storeErr("scan assertion", err)
	}

	if err := json.Unmarshal([]byte(value), &a.Value); err != nil {
		return assertion.Assertion{}, fmt.Errorf("decode assertion value: %w", err)
	}
	a.AssertedAt = fromMillis(assertedAt)
	a.ValidFrom = fromNullMillis(validFrom)
	a.ValidTo = fromNullMillis(validTo)
	return a, nil
}
