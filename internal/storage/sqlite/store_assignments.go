package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vitalyst/provenance/internal/domain/review"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/storage/cursor"
)

const assignmentColumns = `id, entity_id, reviewer_id, assigned_at, due_date,
	priority, status, completed_at`

// PutAssignment inserts or replaces an assignment record.
func (s *Store) PutAssignment(ctx context.Context, a review.Assignment) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO review_assignments (
	id, entity_id, reviewer_id, assigned_at, due_date,
	priority, status, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	entity_id = excluded.entity_id,
	reviewer_id = excluded.reviewer_id,
	assigned_at = excluded.assigned_at,
	due_date = excluded.due_date,
	priority = excluded.priority,
	status = excluded.status,
	completed_at = excluded.completed_at
`,
		a.ID, a.EntityID, a.ReviewerID, toMillis(a.AssignedAt), toNullMillis(a.DueDate),
		int(a.Priority), int(a.Status), toNullMillis(a.CompletedAt),
	)
	if err != nil {
		return storeErr("put assignment", err)
	}
	return nil
}

// GetAssignment retrieves an assignment by id.
func (s *Store) GetAssignment(ctx context.Context, id string) (review.Assignment, error) {
	if err := ctxErr(ctx); err != nil {
		return review.Assignment{}, err
	}
	if err := s.ready(); err != nil {
		return review.Assignment{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM review_assignments WHERE id = ?`, id)
	return scanAssignment(row.Scan)
}

// ListPendingAssignments returns a reviewer's pending queue ordered by
// priority (highest first) then assignment time.
func (s *Store) ListPendingAssignments(ctx context.Context, reviewerID string, pageSize int, pageToken string) (storage.AssignmentPage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.AssignmentPage{}, err
	}
	if err := s.ready(); err != nil {
		return storage.AssignmentPage{}, err
	}

	query := `
SELECT ` + assignmentColumns + `
FROM review_assignments
WHERE reviewer_id = ? AND status = ?`
	args := []any{reviewerID, int(review.StatusPending)}

	if pageToken != "" {
		c, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.AssignmentPage{}, apperrors.Wrap(apperrors.CodeCursorInvalid, "invalid page token", err)
		}
		last, err := s.GetAssignment(ctx, c.Key)
		if err != nil {
			return storage.AssignmentPage{}, apperrors.Wrap(apperrors.CodeCursorInvalid, "stale page token", err)
		}
		query += `
	AND (priority < ?
		OR (priority = ? AND assigned_at > ?)
		OR (priority = ? AND assigned_at = ? AND id > ?))`
		assignedAt := toMillis(last.AssignedAt)
		args = append(args,
			int(last.Priority),
			int(last.Priority), assignedAt,
			int(last.Priority), assignedAt, last.ID,
		)
	}

	size := normalizePageSize(pageSize)
	query += `
ORDER BY priority DESC, assigned_at ASC, id ASC
LIMIT ?`
	args = append(args, size+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.AssignmentPage{}, storeErr("list pending assignments", err)
	}
	defer func() { _ = rows.Close() }()

	var page storage.AssignmentPage
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return storage.AssignmentPage{}, err
		}
		page.Assignments = append(page.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return storage.AssignmentPage{}, storeErr("list pending assignments", err)
	}

	if len(page.Assignments) > size {
		page.Assignments = page.Assignments[:size]
		token, err := cursor.Encode(cursor.New(page.Assignments[size-1].ID, ""))
		if err != nil {
			return storage.AssignmentPage{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func scanAssignment(scan func(dest ...any) error) (review.Assignment, error) {
	var (
		a           review.Assignment
		assignedAt  int64
		dueDate     sql.NullInt64
		priority    int
		status      int
		completedAt sql.NullInt64
	)
	err := scan(
		&a.ID, &a.EntityID, &a.ReviewerID, &assignedAt, &dueDate,
		&priority, &status, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Assignment{}, storage.ErrNotFound
	}
	if err != nil {
		return review.Assignment{}, storeErr("scan assignment", err)
	}

	a.AssignedAt = fromMillis(assignedAt)
	a.DueDate = fromNullMillis(dueDate)
	a.Priority = review.Priority(priority)
	a.Status = review.Status(status)
	a.CompletedAt = fromNullMillis(completedAt)
	return a, nil
}
