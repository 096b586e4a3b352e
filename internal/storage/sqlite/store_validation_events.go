package sqlite

import (
	"context"

	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/domain/validation"
)

const validationEventColumns = `id, entity_id, status, timestamp, actor_type, reviewer_id,
	comments, confidence_score, changes_requested, source_ids, propagated_from`

// AppendValidationEvent appends a review event and indexes its sources.
func (s *Store) AppendValidationEvent(ctx context.Context, e validation.Event) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	changes, err := encodeStrings(e.ChangesRequested)
	if err != nil {
		return err
	}
	sourceIDs, err := encodeStrings(e.SourceIDs)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO validation_events (
	id, entity_id, status, timestamp, actor_type, reviewer_id,
	comments, confidence_score, changes_requested, source_ids, propagated_from
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		e.ID, e.EntityID, int(e.Status), toMillis(e.Timestamp), string(e.ActorType),
		e.ReviewerID, e.Comments, e.ConfidenceScore, changes, sourceIDs, e.PropagatedFrom,
	)
	if err != nil {
		return storeErr("append validation event", err)
	}

	for _, sourceID := range e.SourceIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO validation_event_sources (event_id, source_id) VALUES (?, ?)`,
			e.ID, sourceID,
		); err != nil {
			return storeErr("index event source", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit validation event", err)
	}
	return nil
}

// ListValidationEventsByEntity returns events for an entity, newest first.
func (s *Store) ListValidationEventsByEntity(ctx context.Context, entityID string) ([]validation.Event, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	return s.queryValidationEvents(ctx, `
SELECT `+validationEventColumns+`
FROM validation_events
WHERE entity_id = ?
ORDER BY timestamp DESC, id DESC
`, entityID)
}

// ListValidationEventsBySource returns events touching a source, newest first.
func (s *Store) ListValidationEventsBySource(ctx context.Context, sourceID string) ([]validation.Event, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	return s.queryValidationEvents(ctx, `
SELECT `+prefixedColumns("e", validationEventColumns)+`
FROM validation_events e
JOIN validation_event_sources es ON es.event_id = e.id
WHERE es.source_id = ?
ORDER BY e.timestamp DESC, e.id DESC
`, sourceID)
}

func (s *Store) queryValidationEvents(ctx context.Context, query string, args ...any) ([]validation.Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list validation events", err)
	}
	defer func() { _ = rows.Close() }()

	var events []validation.Event
	for rows.Next() {
		var (
			e            validation.Event
			status       int
			timestamp    int64
			actorType    string
			changesRaw   string
			sourceIDsRaw string
		)
		err := rows.Scan(
			&e.ID, &e.EntityID, &status, &timestamp, &actorType, &e.ReviewerID,
			&e.Comments, &e.ConfidenceScore, &changesRaw, &sourceIDsRaw, &e.PropagatedFrom,
		)
		if err != nil {
			return nil, storeErr("scan validation event", err)
		}
		changes, err := decodeStrings(changesRaw)
		if err != nil {
			return nil, err
		}
		sourceIDs, err := decodeStrings(sourceIDsRaw)
		if err != nil {
			return nil, err
		}
		e.Status = entity.Status(status)
		e.Timestamp = fromMillis(timestamp)
		e.ActorType = validation.ActorType(actorType)
		e.ChangesRequested = changes
		e.SourceIDs = sourceIDs
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list validation events", err)
	}
	return events, nil
}
