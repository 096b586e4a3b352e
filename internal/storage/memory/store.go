// Package memory provides an in-memory store for tests and local runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/vitalyst/provenance/internal/domain/assertion"
	"github.com/vitalyst/provenance/internal/domain/crossref"
	"github.com/vitalyst/provenance/internal/domain/entity"
	"github.com/vitalyst/provenance/internal/domain/review"
	"github.com/vitalyst/provenance/internal/domain/source"
	"github.com/vitalyst/provenance/internal/domain/validation"
	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/storage"
	"github.com/vitalyst/provenance/internal/storage/cursor"
)

const defaultPageSize = 50

// Store keeps every record in mutex-guarded maps. It implements the full
// storage.Store capability surface with the same conditional-write
// semantics as the SQLite store, which makes it the reference fake for
// concurrency tests.
type Store struct {
	mu               sync.Mutex
	entities         map[string]entity.Entity
	assertions       map[string]assertion.Assertion
	heads            map[string]string
	sources          map[string]source.Source
	validationEvents []validation.Event
	crossRefs        []crossref.Result
	assignments      map[string]review.Assignment
	auditEvents      []storage.AuditEvent
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		entities:    make(map[string]entity.Entity),
		assertions:  make(map[string]assertion.Assertion),
		heads:       make(map[string]string),
		sources:     make(map[string]source.Source),
		assignments: make(map[string]review.Assignment),
	}
}

func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "datastore deadline exceeded", err)
	}
	return err
}

func headKey(entityID, attribute string) string {
	return entityID + "\x00" + attribute
}

// PutEntity inserts or replaces an entity record.
func (s *Store) PutEntity(ctx context.Context, e entity.Entity) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(e.ID) == "" {
		return apperrors.New(apperrors.CodeEntityEmptyID, "entity id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
	return nil
}

// GetEntity retrieves an entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (entity.Entity, error) {
	if err := ctxErr(ctx); err != nil {
		return entity.Entity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return entity.Entity{}, storage.ErrNotFound
	}
	return e, nil
}

// UpdateEntityStatus conditionally replaces an entity record.
func (s *Store) UpdateEntityStatus(ctx context.Context, e entity.Entity, expectedVersion int64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entities[e.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if current.Version != expectedVersion {
		return storage.ErrVersionConflict
	}
	s.entities[e.ID] = e
	return nil
}

// ListChildren returns direct children of parentID, ordered by id.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]entity.Entity, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var children []entity.Entity
	for _, e := range s.entities {
		for _, parent := range e.ParentIDs {
			if parent == parentID {
				children = append(children, e)
				break
			}
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	return children, nil
}

// ListEntities returns a page of entities ordered by id.
func (s *Store) ListEntities(ctx context.Context, pageSize int, pageToken string) (storage.EntityPage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.EntityPage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start, err := resumeAfter(ids, pageToken)
	if err != nil {
		return storage.EntityPage{}, err
	}
	size := normalizePageSize(pageSize)

	var page storage.EntityPage
	for i := start; i < len(ids) && len(page.Entities) < size; i++ {
		page.Entities = append(page.Entities, s.entities[ids[i]])
	}
	if n := start + len(page.Entities); n < len(ids) {
		token, err := cursor.Encode(cursor.New(ids[n-1], ""))
		if err != nil {
			return storage.EntityPage{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// AppendAssertion appends conditioned on the lineage head, closing any open
// relationship version in the same critical section.
func (s *Store) AppendAssertion(ctx context.Context, a assertion.Assertion, expectedHeadID string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := headKey(a.EntityID, a.Attribute)
	currentHead := s.heads[key]
	if currentHead != expectedHeadID {
		return storage.ErrHeadConflict
	}
	if currentHead != "" {
		prev := s.assertions[currentHead]
		if a.AssertedAt.Before(prev.AssertedAt) {
			return apperrors.New(apperrors.CodeAssertionLineageOrder, "assertion predates the lineage head")
		}
		if a.ValidFrom != nil && prev.ValidFrom != nil && prev.ValidTo == nil {
			closed := prev
			validTo := *a.ValidFrom
			closed.ValidTo = &validTo
			s.assertions[currentHead] = closed
		}
	}
	s.assertions[a.ID] = a
	s.heads[key] = a.ID
	return nil
}

// GetAssertion retrieves an assertion by id.
func (s *Store) GetAssertion(ctx context.Context, id string) (assertion.Assertion, error) {
	if err := ctxErr(ctx); err != nil {
		return assertion.Assertion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assertions[id]
	if !ok {
		return assertion.Assertion{}, storage.ErrNotFound
	}
	return a, nil
}

// GetHead returns the current head assertion for (entity, attribute).
func (s *Store) GetHead(ctx context.Context, entityID, attribute string) (assertion.Assertion, error) {
	if err := ctxErr(ctx); err != nil {
		return assertion.Assertion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	headID, ok := s.heads[headKey(entityID, attribute)]
	if !ok {
		return assertion.Assertion{}, storage.ErrNotFound
	}
	return s.assertions[headID], nil
}

// ListLineage walks the chain newest-first from the head or a page token.
func (s *Store) ListLineage(ctx context.Context, entityID, attribute string, pageSize int, pageToken string) (storage.AssertionPage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.AssertionPage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	startID := s.heads[headKey(entityID, attribute)]
	if pageToken != "" {
		c, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.AssertionPage{}, apperrors.Wrap(apperrors.CodeCursorInvalid, "invalid page token", err)
		}
		startID = c.Key
	}

	size := normalizePageSize(pageSize)
	var page storage.AssertionPage
	for id := startID; id != "" && len(page.Assertions) < size; {
		a, ok := s.assertions[id]
		if !ok {
			return storage.AssertionPage{}, storage.ErrNotFound
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

// ListHeads returns the newest assertion per source for (entity, attribute).
func (s *Store) ListHeads(ctx context.Context, entityID, attribute string) ([]assertion.Assertion, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	newest := make(map[string]assertion.Assertion)
	for id := s.heads[headKey(entityID, attribute)]; id != ""; {
		a, ok := s.assertions[id]
		if !ok {
			break
		}
		if _, seen := newest[a.SourceID]; !seen {
			newest[a.SourceID] = a
		}
		id = a.PreviousID
	}

	heads := make([]assertion.Assertion, 0, len(newest))
	for _, a := range newest {
		heads = append(heads, a)
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].SourceID < heads[j].SourceID })
	return heads, nil
}

// ListAttributes returns every attribute name asserted for an entity.
func (s *Store) ListAttributes(ctx context.Context, entityID string) ([]string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var attributes []string
	prefix := entityID + "\x00"
	for key := range s.heads {
		if strings.HasPrefix(key, prefix) {
			attributes = append(attributes, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(attributes)
	return attributes, nil
}

// PutSource inserts or replaces a source record.
func (s *Store) PutSource(ctx context.Context, src source.Source) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(src.ID) == "" {
		return apperrors.New(apperrors.CodeSourceEmptyName, "source id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
	return nil
}

// GetSource retrieves a source by id.
func (s *Store) GetSource(ctx context.Context, id string) (source.Source, error) {
	if err := ctxErr(ctx); err != nil {
		return source.Source{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return source.Source{}, storage.ErrNotFound
	}
	return src, nil
}

// ListSources returns a page of sources ordered by id.
func (s *Store) ListSources(ctx context.Context, pageSize int, pageToken string) (storage.SourcePage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.SourcePage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start, err := resumeAfter(ids, pageToken)
	if err != nil {
		return storage.SourcePage{}, err
	}
	size := normalizePageSize(pageSize)

	var page storage.SourcePage
	for i := start; i < len(ids) && len(page.Sources) < size; i++ {
		page.Sources = append(page.Sources, s.sources[ids[i]])
	}
	if n := start + len(page.Sources); n < len(ids) {
		token, err := cursor.Encode(cursor.New(ids[n-1], ""))
		if err != nil {
			return storage.SourcePage{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// PutSourceMetrics swaps the metrics snapshot of a source.
func (s *Store) PutSourceMetrics(ctx context.Context, sourceID string, m source.Metrics) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return storage.ErrNotFound
	}
	src.Metrics = m
	s.sources[sourceID] = src
	return nil
}

// AppendValidationEvent appends a review event.
func (s *Store) AppendValidationEvent(ctx context.Context, e validation.Event) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validationEvents = append(s.validationEvents, e)
	return nil
}

// ListValidationEventsByEntity returns events for an entity, newest first.
func (s *Store) ListValidationEventsByEntity(ctx context.Context, entityID string) ([]validation.Event, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []validation.Event
	for _, e := range s.validationEvents {
		if e.EntityID == entityID {
			events = append(events, e)
		}
	}
	sortEventsNewestFirst(events)
	return events, nil
}

// ListValidationEventsBySource returns events touching a source, newest first.
func (s *Store) ListValidationEventsBySource(ctx context.Context, sourceID string) ([]validation.Event, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []validation.Event
	for _, e := range s.validationEvents {
		for _, id := range e.SourceIDs {
			if id == sourceID {
				events = append(events, e)
				break
			}
		}
	}
	sortEventsNewestFirst(events)
	return events, nil
}

// AppendCrossRefResult appends a comparison result.
func (s *Store) AppendCrossRefResult(ctx context.Context, r crossref.Result) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crossRefs = append(s.crossRefs, r)
	return nil
}

// ListCrossRefResultsBySource returns results for a source, newest first.
func (s *Store) ListCrossRefResultsBySource(ctx context.Context, sourceID string) ([]crossref.Result, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []crossref.Result
	for _, r := range s.crossRefs {
		if r.SourceID == sourceID {
			results = append(results, r)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ComparedAt.After(results[j].ComparedAt)
	})
	return results, nil
}

// PutAssignment inserts or replaces an assignment record.
func (s *Store) PutAssignment(ctx context.Context, a review.Assignment) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ID] = a
	return nil
}

// GetAssignment retrieves an assignment by id.
func (s *Store) GetAssignment(ctx context.Context, id string) (review.Assignment, error) {
	if err := ctxErr(ctx); err != nil {
		return review.Assignment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return review.Assignment{}, storage.ErrNotFound
	}
	return a, nil
}

// ListPendingAssignments returns a page of a reviewer's pending queue.
func (s *Store) ListPendingAssignments(ctx context.Context, reviewerID string, pageSize int, pageToken string) (storage.AssignmentPage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.AssignmentPage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []review.Assignment
	for _, a := range s.assignments {
		if a.ReviewerID == reviewerID && a.Status == review.StatusPending {
			pending = append(pending, a)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Before(pending[j]) })

	start := 0
	if pageToken != "" {
		c, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.AssignmentPage{}, apperrors.Wrap(apperrors.CodeCursorInvalid, "invalid page token", err)
		}
		for i, a := range pending {
			if a.ID == c.Key {
				start = i + 1
				break
			}
		}
	}
	size := normalizePageSize(pageSize)

	var page storage.AssignmentPage
	for i := start; i < len(pending) && len(page.Assignments) < size; i++ {
		page.Assignments = append(page.Assignments, pending[i])
	}
	if n := start + len(page.Assignments); n < len(pending) && n > 0 {
		token, err := cursor.Encode(cursor.New(pending[n-1].ID, ""))
		if err != nil {
			return storage.AssignmentPage{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// AppendAuditEvent appends an operational audit record.
func (s *Store) AppendAuditEvent(ctx context.Context, e storage.AuditEvent) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditEvents = append(s.auditEvents, e)
	return nil
}

// ListAuditEvents returns audit events newest first. Filter expressions
// need an indexed store; the in-memory fake only serves unfiltered reads.
func (s *Store) ListAuditEvents(ctx context.Context, filter string, pageSize int, pageToken string) (storage.AuditPage, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.AuditPage{}, err
	}
	if strings.TrimSpace(filter) != "" {
		return storage.AuditPage{}, apperrors.New(apperrors.CodeFilterInvalid, "audit filters require the sqlite store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]storage.AuditEvent, len(s.auditEvents))
	copy(events, s.auditEvents)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })

	size := normalizePageSize(pageSize)
	if len(events) > size {
		events = events[:size]
	}
	return storage.AuditPage{Events: events}, nil
}

func sortEventsNewestFirst(events []validation.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}

func normalizePageSize(pageSize int) int {
	if pageSize <= 0 {
		return defaultPageSize
	}
	return pageSize
}

// resumeAfter locates the index after the cursor key in a sorted id list.
func resumeAfter(ids []string, pageToken string) (int, error) {
	if pageToken == "" {
		return 0, nil
	}
	c, err := cursor.Decode(pageToken)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeCursorInvalid, "invalid page token", err)
	}
	return sort.SearchStrings(ids, c.Key+"\x00"), nil
}
