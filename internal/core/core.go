package core

import (
	"errors"
	"fmt"
	"time"
)

// SourceStatus is the lifecycle state of a Source.
type SourceStatus string

const (
	StatusPending    SourceStatus = "pending"    // discovered, nothing downloaded yet
	StatusDownloaded SourceStatus = "downloaded" // content fetched and reconciled
	StatusProcessed  SourceStatus = "processed"  // extraction finished (event or discard)
	StatusFailed     SourceStatus = "failed"     // permanent fetch failure for this run
)

// Sentinel errors shared across the pipeline.
var (
	ErrInvalidStatus     = errors.New("invalid source status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsValid reports whether s is one of the four lifecycle states.
func (s SourceStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusDownloaded, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s ends the record's progress for the current run.
func (s SourceStatus) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// rank orders the forward progression pending < downloaded < processed.
// failed sits outside the progression and is handled explicitly.
func (s SourceStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusDownloaded:
		return 1
	case StatusProcessed:
		return 2
	}
	return -1
}

// CanTransition reports whether a status write from -> to is legal.
// The progression is forward-only; any state may become failed; force
// allows rewinding to an earlier stage for reprocessing.
func CanTransition(from, to SourceStatus, force bool) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	if to == StatusFailed {
		return true
	}
	if from == StatusFailed {
		// failed is terminal for the run unless forced back in.
		return force
	}
	if force {
		return true
	}
	return to.rank() > from.rank()
}

// Transition validates and returns the new status, wrapping ErrInvalidTransition
// when the move is not allowed.
func Transition(from, to SourceStatus, force bool) (SourceStatus, error) {
	if !CanTransition(from, to, force) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// Source is a discovered article candidate, unique by aggregator URL.
type Source struct {
	ID          string       `json:"id"`                     // Deterministic UUID derived from URL
	URL         string       `json:"url"`                    // Original aggregator URL, immutable
	ResolvedURL *string      `json:"resolved_url,omitempty"` // Publisher URL after redirect resolution
	Title       string       `json:"title"`                  // Headline as seen in the feed
	SourceType  string       `json:"source_type"`            // Origin of the record (e.g., "google_news")
	Status      SourceStatus `json:"status"`                 // Lifecycle state
	Content     *string      `json:"content,omitempty"`      // Reconciled article body
	PublishedAt *time.Time   `json:"published_at,omitempty"` // Publication timestamp, naive UTC
	FetchedAt   time.Time    `json:"fetched_at"`             // When the record was discovered
}

// ExtractedEvent is the structured record derived from one Source.
type ExtractedEvent struct {
	ID            string     `json:"id"`                       // Unique identifier
	SourceID      string     `json:"source_id"`                // 1:1 back-reference to the Source
	Summary       string     `json:"summary"`                  // One to two sentence Portuguese summary
	VictimName    *string    `json:"victim_name,omitempty"`    // Victim name(s), concatenated when multiple
	Location      *string    `json:"location,omitempty"`       // Free-form location string
	ExtractedDate *time.Time `json:"extracted_date,omitempty"` // Event date resolved by the model
	Confidence    float64    `json:"confidence"`               // Model confidence in [0,1], 0.5 when untrusted
	IncidentID    *string    `json:"incident_id,omitempty"`    // Canonical incident link, set by enrich
	CreatedAt     time.Time  `json:"created_at"`               // When the extraction was first stored
}

// Incident is a canonical real-world event. Many extracted events may
// resolve to one incident.
type Incident struct {
	ID           string     `json:"id"`                     // Unique identifier
	Title        string     `json:"title"`                  // Canonical title
	Date         *time.Time `json:"date,omitempty"`         // Incident date, naive UTC
	Location     *string    `json:"location,omitempty"`     // Free-form location string
	City         string     `json:"city"`                   // Defaulted from configuration
	Neighborhood *string    `json:"neighborhood,omitempty"` // Derived locality, when recognizable
	Description  *string    `json:"description,omitempty"`  // Canonical description
	Confirmed    bool       `json:"confirmed"`              // False on auto-create, flipped manually
	CreatedAt    time.Time  `json:"created_at"`             // Insertion time, used for tie-breaking
}

// FeedEntry is one item yielded by the feed fetcher before ingestion.
type FeedEntry struct {
	URL       string     `json:"url"`                 // Aggregator link
	Title     string     `json:"title"`               // Item title
	Published *time.Time `json:"published,omitempty"` // Feed-supplied publication time
}

// IngestStats reports the outcome of one ingest run.
type IngestStats struct {
	Fetched    int `json:"fetched"`     // Feed entries seen across the grid
	NewSources int `json:"new_sources"` // Rows inserted
	Enqueued   int `json:"enqueued"`    // Download jobs scheduled
}

// DownloadStats reports the outcome of one download sweep.
type DownloadStats struct {
	Attempted  int `json:"attempted"`
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// ExtractStats reports the outcome of one extract sweep.
type ExtractStats struct {
	Attempted int `json:"attempted"`
	Extracted int `json:"extracted"` // Events written
	Discarded int `json:"discarded"` // Keyword or model rejections
	Skipped   int `json:"skipped"`   // Failed sources left alone
	Failed    int `json:"failed"`
}

// EnrichStats reports the outcome of one enrich sweep.
type EnrichStats struct {
	Linked  int `json:"linked"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}
