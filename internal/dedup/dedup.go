// Package dedup resolves extracted events against canonical incidents.
// Candidates are blocked by date window, then scored by weighted fuzzy
// similarity of victim, location, and summary.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	edlib "github.com/hbollon/go-edlib"

	"vigia/internal/config"
	"vigia/internal/core"
	"vigia/internal/logger"
	"vigia/internal/persistence"
)

// Similarity produces a ratio in [0, 1] for two strings. Implementations
// are expected to handle casing and whitespace themselves.
type Similarity interface {
	Ratio(a, b string) float64
}

// LCS scores strings by longest-common-subsequence similarity after
// lowercasing and trimming. It is the default Similarity.
type LCS struct{}

// Ratio returns the LCS length of a and b divided by the rune count of
// the shorter string. A name fully contained in a longer title scores 1,
// which keeps later reports of the same death matchable against
// "Morte de <victim>" incident titles.
func (LCS) Ratio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	shorter := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n < shorter {
		shorter = n
	}
	return float64(edlib.LCS(a, b)) / float64(shorter)
}

// localityIndicators mark the start of a neighborhood name inside a
// free-form Brazilian location string.
var localityIndicators = []string{"bairro", "comunidade", "morro", "favela", "complexo"}

// Neighborhood extracts the locality from a free-form location string:
// the text after the earliest indicator word, cut at the next comma.
// "no bairro Jacintinho, em Maceió" yields "Jacintinho". Strings with
// no indicator come back whole, trimmed.
func Neighborhood(location string) string {
	trimmed := strings.TrimSpace(location)
	lower := strings.ToLower(trimmed)

	start := -1
	indicatorLen := 0
	for _, indicator := range localityIndicators {
		idx := strings.Index(lower, indicator)
		if idx >= 0 && (start < 0 || idx < start) {
			start = idx
			indicatorLen = len(indicator)
		}
	}
	if start < 0 {
		return trimmed
	}

	rest := trimmed[start+indicatorLen:]
	if comma := strings.Index(rest, ","); comma >= 0 {
		rest = rest[:comma]
	}
	return strings.TrimSpace(rest)
}

// Weights hold the contribution of each component score.
type Weights struct {
	Victim   float64
	Location float64
	Summary  float64
}

// Resolver attaches extracted events to canonical incidents.
type Resolver struct {
	incidents  persistence.IncidentRepository
	sim        Similarity
	weights    Weights
	threshold  float64
	windowDays int
	log        *slog.Logger
}

// NewResolver builds a Resolver over the given incident repository.
// A nil sim falls back to LCS.
func NewResolver(incidents persistence.IncidentRepository, sim Similarity, cfg config.Dedup) *Resolver {
	if sim == nil {
		sim = LCS{}
	}
	return &Resolver{
		incidents: incidents,
		sim:       sim,
		weights: Weights{
			Victim:   cfg.VictimWeight,
			Location: cfg.LocationWeight,
			Summary:  cfg.SummaryWeight,
		},
		threshold:  cfg.Threshold,
		windowDays: cfg.WindowDays,
		log:        logger.Component("dedup"),
	}
}

// Resolve finds the canonical incident for an event, if one exists.
// It returns the best-scoring candidate at or above the threshold, or
// nil with the best score seen. Equal scores keep the earlier candidate,
// so the repository's insertion ordering decides ties. Events without
// an extracted date yield no candidates.
func (r *Resolver) Resolve(ctx context.Context, event *core.ExtractedEvent) (*core.Incident, float64, error) {
	if event.ExtractedDate == nil {
		return nil, 0, nil
	}

	candidates, err := r.incidents.ListByDateWindow(ctx, *event.ExtractedDate, r.windowDays)
	if err != nil {
		return nil, 0, fmt.Errorf("listing candidate incidents: %w", err)
	}

	var best *core.Incident
	bestScore := 0.0
	for i := range candidates {
		score := r.score(event, &candidates[i])
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}

	if best == nil || bestScore < r.threshold {
		r.log.Debug("no incident matched",
			"event_id", event.ID,
			"candidates", len(candidates),
			"best_score", bestScore)
		return nil, bestScore, nil
	}

	r.log.Debug("incident matched",
		"event_id", event.ID,
		"incident_id", best.ID,
		"score", bestScore)
	return best, bestScore, nil
}

// score combines the weighted component similarities for one candidate.
// Components with a missing operand contribute 0.
func (r *Resolver) score(event *core.ExtractedEvent, incident *core.Incident) float64 {
	victim := r.victimScore(event, incident)
	location := r.locationScore(event, incident)
	summary := r.summaryScore(event, incident)
	return r.weights.Victim*victim + r.weights.Location*location + r.weights.Summary*summary
}

// victimScore compares the victim name against the incident title and,
// when present, the incident description, keeping the higher ratio.
func (r *Resolver) victimScore(event *core.ExtractedEvent, incident *core.Incident) float64 {
	if event.VictimName == nil || *event.VictimName == "" {
		return 0
	}
	score := r.sim.Ratio(*event.VictimName, incident.Title)
	if incident.Description != nil && *incident.Description != "" {
		if s := r.sim.Ratio(*event.VictimName, *incident.Description); s > score {
			score = s
		}
	}
	return score
}

// locationScore compares the raw location strings and the derived
// neighborhoods, keeping the higher ratio. The incident side prefers
// its stored neighborhood over deriving one from its location.
func (r *Resolver) locationScore(event *core.ExtractedEvent, incident *core.Incident) float64 {
	if event.Location == nil || *event.Location == "" {
		return 0
	}

	score := 0.0
	if incident.Location != nil && *incident.Location != "" {
		score = r.sim.Ratio(*event.Location, *incident.Location)
	}

	comparand := ""
	if incident.Neighborhood != nil && *incident.Neighborhood != "" {
		comparand = *incident.Neighborhood
	} else if incident.Location != nil && *incident.Location != "" {
		comparand = Neighborhood(*incident.Location)
	}
	if comparand != "" {
		if s := r.sim.Ratio(Neighborhood(*event.Location), comparand); s > score {
			score = s
		}
	}
	return score
}

// summaryScore compares the event summary against the incident description.
func (r *Resolver) summaryScore(event *core.ExtractedEvent, incident *core.Incident) float64 {
	if event.Summary == "" || incident.Description == nil || *incident.Description == "" {
		return 0
	}
	return r.sim.Ratio(event.Summary, *incident.Description)
}
