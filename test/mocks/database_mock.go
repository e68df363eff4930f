// Package mocks provides in-memory fakes shared by package tests.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vigia/internal/core"
	"vigia/internal/persistence"
)

// MemoryDatabase implements persistence.Database over in-memory maps.
// Per-repository error fields let tests inject failures.
type MemoryDatabase struct {
	mu sync.Mutex

	sources   map[string]*core.Source
	events    map[string]*core.ExtractedEvent
	incidents map[string]*core.Incident

	sourceOrder   []string
	eventOrder    []string
	incidentOrder []string

	// When set, every method of the matching repository returns the error.
	SourcesErr   error
	EventsErr    error
	IncidentsErr error
}

// NewMemoryDatabase returns an empty in-memory database.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		sources:   make(map[string]*core.Source),
		events:    make(map[string]*core.ExtractedEvent),
		incidents: make(map[string]*core.Incident),
	}
}

func (m *MemoryDatabase) Sources() persistence.SourceRepository     { return &memorySourceRepo{m} }
func (m *MemoryDatabase) Events() persistence.EventRepository       { return &memoryEventRepo{m} }
func (m *MemoryDatabase) Incidents() persistence.IncidentRepository { return &memoryIncidentRepo{m} }

func (m *MemoryDatabase) Close() error                   { return nil }
func (m *MemoryDatabase) Ping(ctx context.Context) error { return nil }

// BeginTx returns a transaction view over the same maps. Commit and
// Rollback are no-ops: code under test avoids writes it would roll back.
func (m *MemoryDatabase) BeginTx(ctx context.Context) (persistence.Transaction, error) {
	return &memoryTx{m}, nil
}

// Session returns a session view over the same maps.
func (m *MemoryDatabase) Session(ctx context.Context) (persistence.Session, error) {
	return &memorySession{m}, nil
}

// SeedSource stores a source directly, bypassing Create semantics.
func (m *MemoryDatabase) SeedSource(source core.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[source.ID]; !ok {
		m.sourceOrder = append(m.sourceOrder, source.ID)
	}
	m.sources[source.ID] = &source
}

// SeedEvent stores an event directly.
func (m *MemoryDatabase) SeedEvent(event core.ExtractedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.ID]; !ok {
		m.eventOrder = append(m.eventOrder, event.ID)
	}
	m.events[event.ID] = &event
}

// SeedIncident stores an incident directly.
func (m *MemoryDatabase) SeedIncident(incident core.Incident) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[incident.ID]; !ok {
		m.incidentOrder = append(m.incidentOrder, incident.ID)
	}
	m.incidents[incident.ID] = &incident
}

// SourceByID returns a copy of a stored source for assertions.
func (m *MemoryDatabase) SourceByID(id string) (core.Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return core.Source{}, false
	}
	return *s, true
}

// EventBySourceID returns a copy of the event for a source.
func (m *MemoryDatabase) EventBySourceID(sourceID string) (core.ExtractedEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.eventOrder {
		if e := m.events[id]; e.SourceID == sourceID {
			return *e, true
		}
	}
	return core.ExtractedEvent{}, false
}

// IncidentCount returns the number of stored incidents.
func (m *MemoryDatabase) IncidentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.incidents)
}

// AllIncidents returns copies of all stored incidents in insertion order.
func (m *MemoryDatabase) AllIncidents() []core.Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Incident, 0, len(m.incidentOrder))
	for _, id := range m.incidentOrder {
		out = append(out, *m.incidents[id])
	}
	return out
}

type memoryTx struct {
	db *MemoryDatabase
}

func (t *memoryTx) Commit() error                             { return nil }
func (t *memoryTx) Rollback() error                           { return nil }
func (t *memoryTx) Sources() persistence.SourceRepository     { return t.db.Sources() }
func (t *memoryTx) Events() persistence.EventRepository       { return t.db.Events() }
func (t *memoryTx) Incidents() persistence.IncidentRepository { return t.db.Incidents() }

type memorySession struct {
	db *MemoryDatabase
}

func (s *memorySession) Sources() persistence.SourceRepository     { return s.db.Sources() }
func (s *memorySession) Events() persistence.EventRepository       { return s.db.Events() }
func (s *memorySession) Incidents() persistence.IncidentRepository { return s.db.Incidents() }
func (s *memorySession) Close() error                              { return nil }

func (s *memorySession) BeginTx(ctx context.Context) (persistence.Transaction, error) {
	return s.db.BeginTx(ctx)
}

type memorySourceRepo struct {
	db *MemoryDatabase
}

func (r *memorySourceRepo) Create(ctx context.Context, source *core.Source) (bool, error) {
	if r.db.SourcesErr != nil {
		return false, r.db.SourcesErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.sources {
		if existing.URL == source.URL {
			return false, nil
		}
	}
	copied := *source
	r.db.sources[source.ID] = &copied
	r.db.sourceOrder = append(r.db.sourceOrder, source.ID)
	return true, nil
}

func (r *memorySourceRepo) Get(ctx context.Context, id string) (*core.Source, error) {
	if r.db.SourcesErr != nil {
		return nil, r.db.SourcesErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	source, ok := r.db.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", id, persistence.ErrNotFound)
	}
	copied := *source
	return &copied, nil
}

func (r *memorySourceRepo) GetByURL(ctx context.Context, url string) (*core.Source, error) {
	if r.db.SourcesErr != nil {
		return nil, r.db.SourcesErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, source := range r.db.sources {
		if source.URL == url {
			copied := *source
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("source for %s: %w", url, persistence.ErrNotFound)
}

func (r *memorySourceRepo) ListByStatus(ctx context.Context, status core.SourceStatus, limit int) ([]core.Source, error) {
	return r.list(func(s *core.Source) bool { return s.Status == status }, limit)
}

func (r *memorySourceRepo) ListNotProcessed(ctx context.Context, limit int) ([]core.Source, error) {
	return r.list(func(s *core.Source) bool { return s.Status != core.StatusProcessed }, limit)
}

func (r *memorySourceRepo) List(ctx context.Context, opts persistence.ListOptions) ([]core.Source, error) {
	all, err := r.list(func(*core.Source) bool { return true }, 0)
	if err != nil {
		return nil, err
	}
	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (r *memorySourceRepo) list(keep func(*core.Source) bool, limit int) ([]core.Source, error) {
	if r.db.SourcesErr != nil {
		return nil, r.db.SourcesErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	ordered := make([]string, len(r.db.sourceOrder))
	copy(ordered, r.db.sourceOrder)
	sort.SliceStable(ordered, func(i, j int) bool {
		return r.db.sources[ordered[i]].FetchedAt.Before(r.db.sources[ordered[j]].FetchedAt)
	})

	var out []core.Source
	for _, id := range ordered {
		source := r.db.sources[id]
		if !keep(source) {
			continue
		}
		out = append(out, *source)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memorySourceRepo) UpdateStatus(ctx context.Context, id string, status core.SourceStatus) error {
	if r.db.SourcesErr != nil {
		return r.db.SourcesErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	source, ok := r.db.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, persistence.ErrNotFound)
	}
	source.Status = status
	return nil
}

func (r *memorySourceRepo) UpdateResolvedURL(ctx context.Context, id string, resolvedURL string) error {
	if r.db.SourcesErr != nil {
		return r.db.SourcesErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	source, ok := r.db.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, persistence.ErrNotFound)
	}
	source.ResolvedURL = &resolvedURL
	return nil
}

func (r *memorySourceRepo) UpdatePublishedAt(ctx context.Context, id string, publishedAt time.Time) error {
	if r.db.SourcesErr != nil {
		return r.db.SourcesErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	source, ok := r.db.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, persistence.ErrNotFound)
	}
	source.PublishedAt = &publishedAt
	return nil
}

func (r *memorySourceRepo) MarkDownloaded(ctx context.Context, id string, resolvedURL, content *string, publishedAt *time.Time) error {
	if r.db.SourcesErr != nil {
		return r.db.SourcesErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	source, ok := r.db.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, persistence.ErrNotFound)
	}
	if resolvedURL != nil {
		source.ResolvedURL = resolvedURL
	}
	source.Content = content
	if publishedAt != nil {
		source.PublishedAt = publishedAt
	}
	source.Status = core.StatusDownloaded
	return nil
}

func (r *memorySourceRepo) CountByStatus(ctx context.Context) (map[core.SourceStatus]int, error) {
	if r.db.SourcesErr != nil {
		return nil, r.db.SourcesErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	counts := make(map[core.SourceStatus]int)
	for _, source := range r.db.sources {
		counts[source.Status]++
	}
	return counts, nil
}

type memoryEventRepo struct {
	db *MemoryDatabase
}

func (r *memoryEventRepo) Upsert(ctx context.Context, event *core.ExtractedEvent) error {
	if r.db.EventsErr != nil {
		return r.db.EventsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, id := range r.db.eventOrder {
		existing := r.db.events[id]
		if existing.SourceID == event.SourceID {
			existing.Summary = event.Summary
			existing.VictimName = event.VictimName
			existing.Location = event.Location
			existing.ExtractedDate = event.ExtractedDate
			existing.Confidence = event.Confidence
			event.ID = existing.ID
			event.IncidentID = existing.IncidentID
			event.CreatedAt = existing.CreatedAt
			return nil
		}
	}
	copied := *event
	r.db.events[event.ID] = &copied
	r.db.eventOrder = append(r.db.eventOrder, event.ID)
	return nil
}

func (r *memoryEventRepo) Get(ctx context.Context, id string) (*core.ExtractedEvent, error) {
	if r.db.EventsErr != nil {
		return nil, r.db.EventsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	event, ok := r.db.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, persistence.ErrNotFound)
	}
	copied := *event
	return &copied, nil
}

func (r *memoryEventRepo) GetBySourceID(ctx context.Context, sourceID string) (*core.ExtractedEvent, error) {
	if r.db.EventsErr != nil {
		return nil, r.db.EventsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, id := range r.db.eventOrder {
		if e := r.db.events[id]; e.SourceID == sourceID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("event for source %s: %w", sourceID, persistence.ErrNotFound)
}

func (r *memoryEventRepo) ListUnlinked(ctx context.Context, limit int) ([]core.ExtractedEvent, error) {
	if r.db.EventsErr != nil {
		return nil, r.db.EventsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []core.ExtractedEvent
	for _, id := range r.db.eventOrder {
		event := r.db.events[id]
		if event.IncidentID != nil {
			continue
		}
		out = append(out, *event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryEventRepo) LinkIncident(ctx context.Context, eventID, incidentID string) error {
	if r.db.EventsErr != nil {
		return r.db.EventsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	event, ok := r.db.events[eventID]
	if !ok {
		return fmt.Errorf("event %s: %w", eventID, persistence.ErrNotFound)
	}
	event.IncidentID = &incidentID
	return nil
}

func (r *memoryEventRepo) Count(ctx context.Context) (int, error) {
	if r.db.EventsErr != nil {
		return 0, r.db.EventsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.events), nil
}

func (r *memoryEventRepo) CountLinked(ctx context.Context) (int, error) {
	if r.db.EventsErr != nil {
		return 0, r.db.EventsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, event := range r.db.events {
		if event.IncidentID != nil {
			n++
		}
	}
	return n, nil
}

type memoryIncidentRepo struct {
	db *MemoryDatabase
}

func (r *memoryIncidentRepo) Create(ctx context.Context, incident *core.Incident) error {
	if r.db.IncidentsErr != nil {
		return r.db.IncidentsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	copied := *incident
	r.db.incidents[incident.ID] = &copied
	r.db.incidentOrder = append(r.db.incidentOrder, incident.ID)
	return nil
}

func (r *memoryIncidentRepo) Get(ctx context.Context, id string) (*core.Incident, error) {
	if r.db.IncidentsErr != nil {
		return nil, r.db.IncidentsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	incident, ok := r.db.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, persistence.ErrNotFound)
	}
	copied := *incident
	return &copied, nil
}

func (r *memoryIncidentRepo) ListByDateWindow(ctx context.Context, date time.Time, windowDays int) ([]core.Incident, error) {
	if r.db.IncidentsErr != nil {
		return nil, r.db.IncidentsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	from := date.AddDate(0, 0, -windowDays)
	to := date.AddDate(0, 0, windowDays)

	var out []core.Incident
	for _, id := range r.db.incidentOrder {
		incident := r.db.incidents[id]
		if incident.Date == nil {
			continue
		}
		if incident.Date.Before(from) || incident.Date.After(to) {
			continue
		}
		out = append(out, *incident)
	}
	return out, nil
}

func (r *memoryIncidentRepo) Count(ctx context.Context) (int, error) {
	if r.db.IncidentsErr != nil {
		return 0, r.db.IncidentsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.incidents), nil
}

func (r *memoryIncidentRepo) CountConfirmed(ctx context.Context) (int, error) {
	if r.db.IncidentsErr != nil {
		return 0, r.db.IncidentsErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, incident := range r.db.incidents {
		if incident.Confirmed {
			n++
		}
	}
	return n, nil
}
