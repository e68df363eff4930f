package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vigia/internal/core"
	"vigia/internal/dedup"
	"vigia/internal/persistence"
)

// enrichOutcome classifies what resolution did with one event.
type enrichOutcome int

const (
	enrichSkipped enrichOutcome = iota
	enrichLinked
	enrichCreated
)

// enrichOne is the queue handler for one extracted event. Link and
// create are committed together, so a crash never leaves an incident
// without its founding event.
func (p *Pipeline) enrichOne(ctx context.Context, eventID string) error {
	p.enrichMu.Lock()
	defer p.enrichMu.Unlock()

	event, err := p.db.Events().Get(ctx, eventID)
	if err != nil {
		p.recordEnrich(enrichSkipped, true)
		return fmt.Errorf("loading event: %w", err)
	}
	if event.IncidentID != nil || event.ExtractedDate == nil {
		p.recordEnrich(enrichSkipped, false)
		return nil
	}

	tx, err := p.db.BeginTx(ctx)
	if err != nil {
		p.recordEnrich(enrichSkipped, true)
		return fmt.Errorf("starting transaction: %w", err)
	}
	matcher := dedup.NewResolver(tx.Incidents(), p.sim, p.cfg.Dedup)

	outcome, err := p.resolveEvent(ctx, matcher, tx.Events(), tx.Incidents(), event, p.cfg.AutoCreate)
	if err != nil {
		tx.Rollback()
		p.recordEnrich(enrichSkipped, true)
		return err
	}
	if err := tx.Commit(); err != nil {
		p.recordEnrich(enrichSkipped, true)
		return fmt.Errorf("committing enrichment: %w", err)
	}
	p.recordEnrich(outcome, false)
	return nil
}

// EnrichBatch resolves every unlinked event in one pass. All writes share
// a single transaction committed at the end, so an incident created for
// one event is already a match candidate for the next one in the same
// sweep. Dry runs make no writes at all and report what would happen.
func (p *Pipeline) EnrichBatch(ctx context.Context, autoCreate bool) (core.EnrichStats, error) {
	p.enrichMu.Lock()
	defer p.enrichMu.Unlock()

	var stats core.EnrichStats

	events, err := p.db.Events().ListUnlinked(ctx, 0)
	if err != nil {
		return stats, fmt.Errorf("listing unlinked events: %w", err)
	}
	if len(events) == 0 {
		return stats, nil
	}

	tx, err := p.db.BeginTx(ctx)
	if err != nil {
		return stats, fmt.Errorf("starting transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	matcher := dedup.NewResolver(tx.Incidents(), p.sim, p.cfg.Dedup)
	for i := range events {
		if ctx.Err() != nil {
			break
		}
		event := &events[i]
		if event.ExtractedDate == nil {
			stats.Skipped++
			continue
		}
		outcome, rerr := p.resolveEvent(ctx, matcher, tx.Events(), tx.Incidents(), event, autoCreate)
		if rerr != nil {
			p.log.Warn("event resolution failed", "event_id", event.ID, "error", rerr.Error())
			stats.Errors++
			continue
		}
		switch outcome {
		case enrichLinked:
			stats.Linked++
		case enrichCreated:
			stats.Created++
		default:
			stats.Skipped++
		}
	}

	if !p.cfg.DryRun {
		if err := tx.Commit(); err != nil {
			return stats, fmt.Errorf("committing enrichment: %w", err)
		}
		committed = true
	}

	p.addEnrich(stats)
	p.log.Info("enrich sweep done",
		"linked", stats.Linked,
		"created", stats.Created,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"dry_run", p.cfg.DryRun)
	return stats, ctx.Err()
}

// resolveEvent decides one event's fate: link it to the best candidate
// at or above the threshold, auto-create an incident for it, or leave it
// for a human. Dry runs take the same decisions without writing.
func (p *Pipeline) resolveEvent(
	ctx context.Context,
	matcher *dedup.Resolver,
	events persistence.EventRepository,
	incidents persistence.IncidentRepository,
	event *core.ExtractedEvent,
	autoCreate bool,
) (enrichOutcome, error) {
	incident, score, err := matcher.Resolve(ctx, event)
	if err != nil {
		return enrichSkipped, err
	}

	if incident != nil {
		if !p.cfg.DryRun {
			if err := events.LinkIncident(ctx, event.ID, incident.ID); err != nil {
				return enrichSkipped, fmt.Errorf("linking incident: %w", err)
			}
		}
		p.log.Info("event linked",
			"event_id", event.ID,
			"incident_id", incident.ID,
			"score", score,
			"dry_run", p.cfg.DryRun)
		return enrichLinked, nil
	}

	if !autoCreate {
		return enrichSkipped, nil
	}

	created := p.newIncident(event)
	if !p.cfg.DryRun {
		if err := incidents.Create(ctx, created); err != nil {
			return enrichSkipped, fmt.Errorf("creating incident: %w", err)
		}
		if err := events.LinkIncident(ctx, event.ID, created.ID); err != nil {
			return enrichSkipped, fmt.Errorf("linking new incident: %w", err)
		}
	}
	p.log.Info("incident created",
		"event_id", event.ID,
		"incident_id", created.ID,
		"title", created.Title,
		"best_score", score,
		"dry_run", p.cfg.DryRun)
	return enrichCreated, nil
}

// newIncident shapes an unconfirmed incident from one extraction.
func (p *Pipeline) newIncident(event *core.ExtractedEvent) *core.Incident {
	incident := &core.Incident{
		ID:        uuid.NewString(),
		Title:     incidentTitle(event),
		Date:      event.ExtractedDate,
		Location:  event.Location,
		City:      p.cfg.City,
		Confirmed: false,
		CreatedAt: p.now(),
	}
	if event.Summary != "" {
		summary := event.Summary
		incident.Description = &summary
	}
	if event.Location != nil {
		if hood := dedup.Neighborhood(*event.Location); hood != "" {
			incident.Neighborhood = &hood
		}
	}
	return incident
}

// incidentTitle names an incident after its victim when one is known,
// after the event date otherwise.
func incidentTitle(event *core.ExtractedEvent) string {
	if event.VictimName != nil {
		if victim := strings.TrimSpace(*event.VictimName); victim != "" {
			return "Morte de " + victim
		}
	}
	if event.ExtractedDate != nil {
		return "Homicídio - " + event.ExtractedDate.Format("02/01/2006")
	}
	return "Homicídio - Data desconhecida"
}

// recordEnrich folds one per-record outcome into the shared counters.
func (p *Pipeline) recordEnrich(outcome enrichOutcome, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if failed {
		p.enrich.Errors++
		return
	}
	switch outcome {
	case enrichLinked:
		p.enrich.Linked++
	case enrichCreated:
		p.enrich.Created++
	default:
		p.enrich.Skipped++
	}
}

// addEnrich folds a sweep's counters into the shared totals.
func (p *Pipeline) addEnrich(stats core.EnrichStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enrich.Linked += stats.Linked
	p.enrich.Created += stats.Created
	p.enrich.Skipped += stats.Skipped
	p.enrich.Errors += stats.Errors
}
