// Package persistence provides database abstraction interfaces for storing
// sources, extracted events, and incidents.
package persistence

import (
	"context"
	"errors"
	"time"

	"vigia/internal/core"
)

// ErrNotFound marks lookups that matched no row.
var ErrNotFound = errors.New("record not found")

// SourceRepository handles source persistence operations
type SourceRepository interface {
	// Create inserts a source. An existing row with the same URL is left
	// untouched; the return value reports whether a new row was written.
	Create(ctx context.Context, source *core.Source) (bool, error)

	// Get retrieves a source by ID
	Get(ctx context.Context, id string) (*core.Source, error)

	// GetByURL retrieves a source by its aggregator URL
	GetByURL(ctx context.Context, url string) (*core.Source, error)

	// ListByStatus retrieves sources in one lifecycle state, oldest first
	ListByStatus(ctx context.Context, status core.SourceStatus, limit int) ([]core.Source, error)

	// ListNotProcessed retrieves sources still owed an extraction pass
	ListNotProcessed(ctx context.Context, limit int) ([]core.Source, error)

	// List retrieves sources with pagination, oldest first
	List(ctx context.Context, opts ListOptions) ([]core.Source, error)

	// UpdateStatus writes a new lifecycle state
	UpdateStatus(ctx context.Context, id string, status core.SourceStatus) error

	// UpdateResolvedURL stores the publisher URL behind the aggregator link
	UpdateResolvedURL(ctx context.Context, id string, resolvedURL string) error

	// UpdatePublishedAt backfills the publication timestamp
	UpdatePublishedAt(ctx context.Context, id string, publishedAt time.Time) error

	// MarkDownloaded stores the download results and moves the source to
	// downloaded in one statement. A nil publishedAt keeps the stored value.
	MarkDownloaded(ctx context.Context, id string, resolvedURL, content *string, publishedAt *time.Time) error

	// CountByStatus returns row counts per lifecycle state
	CountByStatus(ctx context.Context) (map[core.SourceStatus]int, error)
}

// EventRepository handles extracted-event persistence operations
type EventRepository interface {
	// Upsert inserts the event or, when the source already has one,
	// updates that row in place keeping its ID and incident link.
	Upsert(ctx context.Context, event *core.ExtractedEvent) error

	// Get retrieves an event by ID
	Get(ctx context.Context, id string) (*core.ExtractedEvent, error)

	// GetBySourceID retrieves the event extracted from a source
	GetBySourceID(ctx context.Context, sourceID string) (*core.ExtractedEvent, error)

	// ListUnlinked retrieves events not yet resolved to an incident,
	// oldest first
	ListUnlinked(ctx context.Context, limit int) ([]core.ExtractedEvent, error)

	// LinkIncident points an event at its canonical incident
	LinkIncident(ctx context.Context, eventID, incidentID string) error

	// Count returns the total number of events
	Count(ctx context.Context) (int, error)

	// CountLinked returns the number of events resolved to an incident
	CountLinked(ctx context.Context) (int, error)
}

// IncidentRepository handles incident persistence operations
type IncidentRepository interface {
	// Create inserts a new incident
	Create(ctx context.Context, incident *core.Incident) error

	// Get retrieves an incident by ID
	Get(ctx context.Context, id string) (*core.Incident, error)

	// ListByDateWindow retrieves incidents whose date falls within
	// ±windowDays of date, in insertion order (created_at, then id)
	ListByDateWindow(ctx context.Context, date time.Time, windowDays int) ([]core.Incident, error)

	// Count returns the total number of incidents
	Count(ctx context.Context) (int, error)

	// CountConfirmed returns the number of human-confirmed incidents
	CountConfirmed(ctx context.Context) (int, error)
}

// ListOptions provides common pagination options
type ListOptions struct {
	Limit  int // Maximum number of results (0 for the repository default)
	Offset int // Number of results to skip
}

// Database aggregates the repositories over a shared connection pool
type Database interface {
	// Sources returns the source repository
	Sources() SourceRepository

	// Events returns the extracted-event repository
	Events() EventRepository

	// Incidents returns the incident repository
	Incidents() IncidentRepository

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error

	// BeginTx starts a new transaction
	BeginTx(ctx context.Context) (Transaction, error)

	// Session checks out a dedicated connection for one worker
	Session(ctx context.Context) (Session, error)
}

// Transaction scopes the repositories to one database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Sources returns the source repository within this transaction
	Sources() SourceRepository

	// Events returns the extracted-event repository within this transaction
	Events() EventRepository

	// Incidents returns the incident repository within this transaction
	Incidents() IncidentRepository
}

// Session scopes the repositories to one dedicated connection. Workers
// check a session out, commit per record, and return it with Close.
type Session interface {
	// Sources returns the source repository bound to this connection
	Sources() SourceRepository

	// Events returns the extracted-event repository bound to this connection
	Events() EventRepository

	// Incidents returns the incident repository bound to this connection
	Incidents() IncidentRepository

	// BeginTx starts a transaction on this connection
	BeginTx(ctx context.Context) (Transaction, error)

	// Close returns the connection to the pool
	Close() error
}
