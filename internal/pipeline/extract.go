package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vigia/internal/core"
	"vigia/internal/keywords"
	"vigia/internal/llm"
	"vigia/internal/persistence"
	"vigia/internal/tasks"
)

// extractOne is the queue handler for one source. It ensures the article
// body is present, gates it through the keyword lexicon, runs the model,
// and upserts the extracted event. Sources the gate or the model reject
// still end processed: a negative answer is an answer.
func (p *Pipeline) extractOne(ctx context.Context, id string) error {
	session, err := p.db.Session(ctx)
	if err != nil {
		p.recordExtract(extractFailed)
		return fmt.Errorf("checking out session: %w", err)
	}
	defer session.Close()

	outcome, eventID, err := p.extractSource(ctx, session, id)
	p.recordExtract(outcome)
	if err != nil {
		return err
	}
	if outcome == extractExtracted && eventID != "" {
		p.queue.Enqueue(tasks.StageEnrich, eventID)
	}
	return nil
}

// extractOutcome classifies what one extract attempt did to its record.
type extractOutcome int

const (
	extractSkipped   extractOutcome = iota // record not eligible this run
	extractDiscarded                       // keyword gate or model said no
	extractExtracted                       // event written
	extractFailed
)

func (p *Pipeline) extractSource(ctx context.Context, session persistence.Session, id string) (extractOutcome, string, error) {
	sources := session.Sources()
	src, err := sources.Get(ctx, id)
	if err != nil {
		return extractFailed, "", fmt.Errorf("loading source: %w", err)
	}

	if (src.Status == core.StatusProcessed || src.Status == core.StatusFailed) && !p.cfg.Force {
		return extractSkipped, "", nil
	}

	// Ensure content, re-running the download sub-steps when the body is
	// missing or the run is forced.
	if src.Content == nil || p.cfg.Force {
		outcome, derr := p.downloadSource(ctx, sources, id)
		if derr != nil {
			return extractFailed, "", derr
		}
		if outcome == downloadFailed || outcome == downloadSkipped {
			return extractSkipped, "", nil
		}
		src, err = sources.Get(ctx, id)
		if err != nil {
			return extractFailed, "", fmt.Errorf("reloading source: %w", err)
		}
		if src.Content == nil {
			return extractSkipped, "", nil
		}
	}

	matched := keywords.Matches(*src.Content)
	if len(matched) == 0 {
		if err := p.markProcessed(ctx, sources, src); err != nil {
			return extractFailed, "", err
		}
		p.log.Debug("no violence keywords, source discarded", "id", id)
		return extractDiscarded, "", nil
	}

	// The model resolves relative expressions against the publication
	// date; discovery time is only a last-resort anchor.
	anchor := src.PublishedAt
	if anchor == nil {
		anchor = &src.FetchedAt
	}
	extraction := p.extractor.Extract(ctx, llm.Input{
		Body:        *src.Content,
		Keywords:    matched,
		PublishedAt: anchor,
	})
	if !extraction.IsValid {
		if err := p.markProcessed(ctx, sources, src); err != nil {
			return extractFailed, "", err
		}
		p.log.Debug("model rejected article", "id", id)
		return extractDiscarded, "", nil
	}

	event := &core.ExtractedEvent{
		ID:            uuid.NewString(),
		SourceID:      src.ID,
		Summary:       extraction.Summary,
		VictimName:    extraction.VictimName,
		Location:      extraction.Location,
		ExtractedDate: extraction.Date,
		Confidence:    extraction.Confidence,
		CreatedAt:     p.now(),
	}
	// Upsert rewrites event.ID with the surviving row on conflict, so a
	// forced re-extraction chains enrich for the original event.
	if err := session.Events().Upsert(ctx, event); err != nil {
		return extractFailed, "", fmt.Errorf("storing extracted event: %w", err)
	}
	if err := p.markProcessed(ctx, sources, src); err != nil {
		return extractFailed, "", err
	}

	p.log.Info("event extracted",
		"source_id", src.ID,
		"event_id", event.ID,
		"confidence", event.Confidence,
		"stub", extraction.IsStub())
	return extractExtracted, event.ID, nil
}

// markProcessed finishes a source's run, verifying the move is legal.
func (p *Pipeline) markProcessed(ctx context.Context, sources persistence.SourceRepository, src *core.Source) error {
	if _, err := core.Transition(src.Status, core.StatusProcessed, p.cfg.Force); err != nil {
		return fmt.Errorf("source %s: %w", src.ID, err)
	}
	if err := sources.UpdateStatus(ctx, src.ID, core.StatusProcessed); err != nil {
		return fmt.Errorf("marking source processed: %w", err)
	}
	return nil
}

// recordExtract folds one outcome into the shared counters.
func (p *Pipeline) recordExtract(outcome extractOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extract.Attempted++
	switch outcome {
	case extractExtracted:
		p.extract.Extracted++
	case extractDiscarded:
		p.extract.Discarded++
	case extractFailed:
		p.extract.Failed++
	default:
		p.extract.Skipped++
	}
}
