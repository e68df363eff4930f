package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vigia/internal/core"
)

// defaultListLimit bounds unpaginated List calls.
const defaultListLimit = 100

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const sourceColumns = `id, url, resolved_url, title, source_type, status, content, published_at, fetched_at`

// postgresSourceRepo implements SourceRepository for PostgreSQL
type postgresSourceRepo struct {
	q queryer
}

func (r *postgresSourceRepo) Create(ctx context.Context, source *core.Source) (bool, error) {
	query := `
		INSERT INTO sources (` + sourceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (url) DO NOTHING
	`
	result, err := r.q.ExecContext(ctx, query,
		source.ID, source.URL, source.ResolvedURL, source.Title,
		source.SourceType, source.Status, source.Content,
		source.PublishedAt, source.FetchedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *postgresSourceRepo) Get(ctx context.Context, id string) (*core.Source, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	source, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return source, nil
}

func (r *postgresSourceRepo) GetByURL(ctx context.Context, url string) (*core.Source, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE url = $1`, url)
	source, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("source for %s: %w", url, ErrNotFound)
		}
		return nil, err
	}
	return source, nil
}

func (r *postgresSourceRepo) ListByStatus(ctx context.Context, status core.SourceStatus, limit int) ([]core.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE status = $1 ORDER BY fetched_at, id`
	args := []interface{}{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSources(rows)
}

func (r *postgresSourceRepo) ListNotProcessed(ctx context.Context, limit int) ([]core.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE status <> $1 ORDER BY fetched_at, id`
	args := []interface{}{core.StatusProcessed}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSources(rows)
}

func (r *postgresSourceRepo) List(ctx context.Context, opts ListOptions) ([]core.Source, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT ` + sourceColumns + ` FROM sources ORDER BY fetched_at, id LIMIT $1 OFFSET $2`
	rows, err := r.q.QueryContext(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSources(rows)
}

func (r *postgresSourceRepo) UpdateStatus(ctx context.Context, id string, status core.SourceStatus) error {
	result, err := r.q.ExecContext(ctx, `UPDATE sources SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update source status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresSourceRepo) UpdateResolvedURL(ctx context.Context, id string, resolvedURL string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE sources SET resolved_url = $2 WHERE id = $1`, id, resolvedURL)
	if err != nil {
		return fmt.Errorf("failed to update resolved url: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresSourceRepo) UpdatePublishedAt(ctx context.Context, id string, publishedAt time.Time) error {
	result, err := r.q.ExecContext(ctx, `UPDATE sources SET published_at = $2 WHERE id = $1`, id, publishedAt)
	if err != nil {
		return fmt.Errorf("failed to update published_at: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresSourceRepo) MarkDownloaded(ctx context.Context, id string, resolvedURL, content *string, publishedAt *time.Time) error {
	query := `
		UPDATE sources SET
			resolved_url = COALESCE($2, resolved_url),
			content = $3,
			published_at = COALESCE($4, published_at),
			status = $5
		WHERE id = $1
	`
	result, err := r.q.ExecContext(ctx, query, id, resolvedURL, content, publishedAt, core.StatusDownloaded)
	if err != nil {
		return fmt.Errorf("failed to mark source downloaded: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresSourceRepo) CountByStatus(ctx context.Context) (map[core.SourceStatus]int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM sources GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[core.SourceStatus]int)
	for rows.Next() {
		var status core.SourceStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanSource(s rowScanner) (*core.Source, error) {
	var source core.Source
	err := s.Scan(
		&source.ID, &source.URL, &source.ResolvedURL, &source.Title,
		&source.SourceType, &source.Status, &source.Content,
		&source.PublishedAt, &source.FetchedAt,
	)
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func collectSources(rows *sql.Rows) ([]core.Source, error) {
	var sources []core.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *source)
	}
	return sources, rows.Err()
}

const eventColumns = `id, source_id, summary, victim_name, location, extracted_date, confidence_score, incident_id, created_at`

// postgresEventRepo implements EventRepository for PostgreSQL
type postgresEventRepo struct {
	q queryer
}

func (r *postgresEventRepo) Upsert(ctx context.Context, event *core.ExtractedEvent) error {
	// The incident link and row identity survive re-extraction; only the
	// extracted fields are replaced.
	query := `
		INSERT INTO extracted_events (id, source_id, summary, victim_name, location, extracted_date, confidence_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			victim_name = EXCLUDED.victim_name,
			location = EXCLUDED.location,
			extracted_date = EXCLUDED.extracted_date,
			confidence_score = EXCLUDED.confidence_score
		RETURNING id, incident_id, created_at
	`
	row := r.q.QueryRowContext(ctx, query,
		event.ID, event.SourceID, event.Summary, event.VictimName,
		event.Location, event.ExtractedDate, event.Confidence, event.CreatedAt,
	)
	if err := row.Scan(&event.ID, &event.IncidentID, &event.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

func (r *postgresEventRepo) Get(ctx context.Context, id string) (*core.ExtractedEvent, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM extracted_events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return event, nil
}

func (r *postgresEventRepo) GetBySourceID(ctx context.Context, sourceID string) (*core.ExtractedEvent, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM extracted_events WHERE source_id = $1`, sourceID)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event for source %s: %w", sourceID, ErrNotFound)
		}
		return nil, err
	}
	return event, nil
}

func (r *postgresEventRepo) ListUnlinked(ctx context.Context, limit int) ([]core.ExtractedEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM extracted_events WHERE incident_id IS NULL ORDER BY created_at, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []core.ExtractedEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

func (r *postgresEventRepo) LinkIncident(ctx context.Context, eventID, incidentID string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE extracted_events SET incident_id = $2 WHERE id = $1`, eventID, incidentID)
	if err != nil {
		return fmt.Errorf("failed to link event to incident: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

func (r *postgresEventRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM extracted_events`).Scan(&n)
	return n, err
}

func (r *postgresEventRepo) CountLinked(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM extracted_events WHERE incident_id IS NOT NULL`).Scan(&n)
	return n, err
}

func scanEvent(s rowScanner) (*core.ExtractedEvent, error) {
	var event core.ExtractedEvent
	err := s.Scan(
		&event.ID, &event.SourceID, &event.Summary, &event.VictimName,
		&event.Location, &event.ExtractedDate, &event.Confidence,
		&event.IncidentID, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

const incidentColumns = `id, title, incident_date, location, city, neighborhood, description, confirmed, created_at`

// postgresIncidentRepo implements IncidentRepository for PostgreSQL
type postgresIncidentRepo struct {
	q queryer
}

func (r *postgresIncidentRepo) Create(ctx context.Context, incident *core.Incident) error {
	query := `
		INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q.ExecContext(ctx, query,
		incident.ID, incident.Title, incident.Date, incident.Location,
		incident.City, incident.Neighborhood, incident.Description,
		incident.Confirmed, incident.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

func (r *postgresIncidentRepo) Get(ctx context.Context, id string) (*core.Incident, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	incident, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("incident %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return incident, nil
}

func (r *postgresIncidentRepo) ListByDateWindow(ctx context.Context, date time.Time, windowDays int) ([]core.Incident, error) {
	// Insertion order decides ties downstream, so the ordering here is
	// part of the contract.
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE incident_date IS NOT NULL
		  AND incident_date >= $1
		  AND incident_date <= $2
		ORDER BY created_at, id
	`
	from := date.AddDate(0, 0, -windowDays)
	to := date.AddDate(0, 0, windowDays)
	rows, err := r.q.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []core.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, *incident)
	}
	return incidents, rows.Err()
}

func (r *postgresIncidentRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&n)
	return n, err
}

func (r *postgresIncidentRepo) CountConfirmed(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents WHERE confirmed`).Scan(&n)
	return n, err
}

func scanIncident(s rowScanner) (*core.Incident, error) {
	var incident core.Incident
	err := s.Scan(
		&incident.ID, &incident.Title, &incident.Date, &incident.Location,
		&incident.City, &incident.Neighborhood, &incident.Description,
		&incident.Confirmed, &incident.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &incident, nil
}
