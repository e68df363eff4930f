package pipeline

import (
	"context"
	"testing"
	"time"

	"vigia/internal/core"
)

// seedIncident stores a canonical incident the fixtures can match.
func (f *fixture) seedIncident(id string, date *time.Time) core.Incident {
	incident := core.Incident{
		ID:           id,
		Title:        "Morte de João da Silva",
		Date:         date,
		Location:     strPtr("bairro Jacintinho"),
		City:         "Maceió",
		Neighborhood: strPtr("Jacintinho"),
		Description:  strPtr("João da Silva foi morto a tiros no Jacintinho."),
		CreatedAt:    time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC),
	}
	f.db.SeedIncident(incident)
	return incident
}

// matchingEvent shapes an event the seeded incident scores above the
// threshold: victim (0.5) plus location (0.3) against weights 0.5/0.3/0.2.
func matchingEvent(id string, date *time.Time) core.ExtractedEvent {
	return core.ExtractedEvent{
		ID:            id,
		SourceID:      "src-" + id,
		Summary:       "Homem executado por disparos de arma de fogo.",
		VictimName:    strPtr("João da Silva"),
		Location:      strPtr("bairro Jacintinho"),
		ExtractedDate: date,
		Confidence:    0.9,
		CreatedAt:     time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC),
	}
}

func TestEnrichOneLinksMatchingIncident(t *testing.T) {
	f := newFixture(t, testConfig())
	date := datePtr(2024, time.May, 10)
	incident := f.seedIncident("inc-1", date)
	f.db.SeedEvent(matchingEvent("evt-1", date))

	if err := f.pipeline.enrichOne(context.Background(), "evt-1"); err != nil {
		t.Fatalf("enrichOne: %v", err)
	}

	event, _ := f.db.EventBySourceID("src-evt-1")
	if event.IncidentID == nil || *event.IncidentID != incident.ID {
		t.Errorf("incident link = %v, want %s", event.IncidentID, incident.ID)
	}
	if n := f.db.IncidentCount(); n != 1 {
		t.Errorf("incidents = %d, want the existing one only", n)
	}
	_, _, stats := f.pipeline.Stats()
	if stats.Linked != 1 || stats.Created != 0 {
		t.Errorf("stats = %+v, want one link", stats)
	}
}

func TestEnrichOneCreatesIncidentWhenNoMatch(t *testing.T) {
	f := newFixture(t, testConfig())
	date := datePtr(2024, time.May, 10)
	f.db.SeedEvent(core.ExtractedEvent{
		ID:            "evt-1",
		SourceID:      "src-1",
		Summary:       "Pedro Santos foi esfaqueado na comunidade Vale do Reginaldo.",
		VictimName:    strPtr("Pedro Santos"),
		Location:      strPtr("comunidade Vale do Reginaldo, Maceió"),
		ExtractedDate: date,
		Confidence:    0.8,
	})

	if err := f.pipeline.enrichOne(context.Background(), "evt-1"); err != nil {
		t.Fatalf("enrichOne: %v", err)
	}

	incidents := f.db.AllIncidents()
	if len(incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(incidents))
	}
	inc := incidents[0]
	if inc.Title != "Morte de Pedro Santos" {
		t.Errorf("title = %q", inc.Title)
	}
	if inc.Confirmed {
		t.Error("auto-created incident must start unconfirmed")
	}
	if inc.City != "Maceió" {
		t.Errorf("city = %q", inc.City)
	}
	if inc.Date == nil || !inc.Date.Equal(*date) {
		t.Errorf("date = %v, want %v", inc.Date, date)
	}
	if inc.Location == nil || *inc.Location != "comunidade Vale do Reginaldo, Maceió" {
		t.Errorf("location = %v", inc.Location)
	}
	if inc.Neighborhood == nil || *inc.Neighborhood != "Vale do Reginaldo" {
		t.Errorf("neighborhood = %v, want derived locality", inc.Neighborhood)
	}
	if inc.Description == nil || *inc.Description != "Pedro Santos foi esfaqueado na comunidade Vale do Reginaldo." {
		t.Errorf("description = %v, want the event summary", inc.Description)
	}

	event, _ := f.db.EventBySourceID("src-1")
	if event.IncidentID == nil || *event.IncidentID != inc.ID {
		t.Errorf("event link = %v, want the new incident", event.IncidentID)
	}
}

func TestEnrichOneSkipsLinkedAndDatelessEvents(t *testing.T) {
	tests := []struct {
		name  string
		event core.ExtractedEvent
	}{
		{
			"already linked",
			core.ExtractedEvent{
				ID: "evt-1", SourceID: "src-1", Summary: "a",
				ExtractedDate: datePtr(2024, time.May, 10),
				IncidentID:    strPtr("inc-keep"),
			},
		},
		{
			"no extracted date",
			core.ExtractedEvent{ID: "evt-1", SourceID: "src-1", Summary: "a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig())
			f.db.SeedEvent(tt.event)

			if err := f.pipeline.enrichOne(context.Background(), "evt-1"); err != nil {
				t.Fatalf("enrichOne: %v", err)
			}
			if n := f.db.IncidentCount(); n != 0 {
				t.Errorf("incidents = %d, want 0", n)
			}
			_, _, stats := f.pipeline.Stats()
			if stats.Skipped != 1 {
				t.Errorf("Skipped = %d, want 1", stats.Skipped)
			}
		})
	}
}

func TestEnrichOneHonorsAutoCreateOff(t *testing.T) {
	cfg := testConfig()
	cfg.AutoCreate = false
	f := newFixture(t, cfg)
	f.db.SeedEvent(matchingEvent("evt-1", datePtr(2024, time.May, 10)))

	if err := f.pipeline.enrichOne(context.Background(), "evt-1"); err != nil {
		t.Fatalf("enrichOne: %v", err)
	}
	if n := f.db.IncidentCount(); n != 0 {
		t.Errorf("incidents = %d, want 0 with auto-create off", n)
	}
	event, _ := f.db.EventBySourceID("src-evt-1")
	if event.IncidentID != nil {
		t.Errorf("event linked to %v, want left for a human", event.IncidentID)
	}
}

func TestEnrichBatchLinksAndCreates(t *testing.T) {
	f := newFixture(t, testConfig())
	date := datePtr(2024, time.May, 10)
	incident := f.seedIncident("inc-1", date)
	f.db.SeedEvent(matchingEvent("evt-1", date))
	f.db.SeedEvent(core.ExtractedEvent{
		ID:            "evt-2",
		SourceID:      "src-evt-2",
		Summary:       "Mulher morta a facadas no Benedito Bentes.",
		VictimName:    strPtr("Maria Oliveira"),
		Location:      strPtr("bairro Benedito Bentes"),
		ExtractedDate: date,
		Confidence:    0.7,
	})

	stats, err := f.pipeline.EnrichBatch(context.Background(), true)
	if err != nil {
		t.Fatalf("EnrichBatch: %v", err)
	}
	if stats.Linked != 1 || stats.Created != 1 || stats.Skipped != 0 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want one link and one creation", stats)
	}

	linked, _ := f.db.EventBySourceID("src-evt-1")
	if linked.IncidentID == nil || *linked.IncidentID != incident.ID {
		t.Errorf("evt-1 link = %v, want %s", linked.IncidentID, incident.ID)
	}
	if n := f.db.IncidentCount(); n != 2 {
		t.Errorf("incidents = %d, want 2", n)
	}
}

func TestEnrichBatchSeesIncidentsCreatedInSameSweep(t *testing.T) {
	f := newFixture(t, testConfig())
	date := datePtr(2024, time.May, 10)
	// Two reports of the same death, no incident yet: the first creates,
	// the second must match what the first just created.
	f.db.SeedEvent(matchingEvent("evt-1", date))
	second := matchingEvent("evt-2", date)
	second.Summary = "Vítima identificada como João da Silva no Jacintinho."
	f.db.SeedEvent(second)

	stats, err := f.pipeline.EnrichBatch(context.Background(), true)
	if err != nil {
		t.Fatalf("EnrichBatch: %v", err)
	}
	if stats.Created != 1 || stats.Linked != 1 {
		t.Errorf("stats = %+v, want one creation then one link", stats)
	}
	if n := f.db.IncidentCount(); n != 1 {
		t.Errorf("incidents = %d, want a single canonical incident", n)
	}
}

func TestEnrichBatchDryRunWritesNothing(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true
	f := newFixture(t, cfg)
	date := datePtr(2024, time.May, 10)
	f.seedIncident("inc-1", date)
	f.db.SeedEvent(matchingEvent("evt-1", date))
	f.db.SeedEvent(core.ExtractedEvent{
		ID:            "evt-2",
		SourceID:      "src-evt-2",
		Summary:       "Homem espancado até a morte no Vergel.",
		VictimName:    strPtr("Carlos Souza"),
		Location:      strPtr("bairro Vergel do Lago"),
		ExtractedDate: date,
	})

	stats, err := f.pipeline.EnrichBatch(context.Background(), true)
	if err != nil {
		t.Fatalf("EnrichBatch: %v", err)
	}
	// The decisions are reported as if they happened.
	if stats.Linked != 1 || stats.Created != 1 {
		t.Errorf("stats = %+v, want decisions counted", stats)
	}

	if n := f.db.IncidentCount(); n != 1 {
		t.Errorf("incidents = %d, want only the pre-existing one", n)
	}
	event, _ := f.db.EventBySourceID("src-evt-1")
	if event.IncidentID != nil {
		t.Errorf("evt-1 linked to %v during a dry run", event.IncidentID)
	}
}

func TestEnrichBatchWithoutAutoCreateSkips(t *testing.T) {
	f := newFixture(t, testConfig())
	f.db.SeedEvent(matchingEvent("evt-1", datePtr(2024, time.May, 10)))

	stats, err := f.pipeline.EnrichBatch(context.Background(), false)
	if err != nil {
		t.Fatalf("EnrichBatch: %v", err)
	}
	if stats.Skipped != 1 || stats.Created != 0 {
		t.Errorf("stats = %+v, want the unmatched event skipped", stats)
	}
	if n := f.db.IncidentCount(); n != 0 {
		t.Errorf("incidents = %d, want 0", n)
	}
}

func TestEnrichBatchSkipsDatelessEvents(t *testing.T) {
	f := newFixture(t, testConfig())
	f.db.SeedEvent(core.ExtractedEvent{ID: "evt-1", SourceID: "src-1", Summary: "sem data"})

	stats, err := f.pipeline.EnrichBatch(context.Background(), true)
	if err != nil {
		t.Fatalf("EnrichBatch: %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
	if n := f.db.IncidentCount(); n != 0 {
		t.Errorf("incidents = %d, want 0 for a dateless event", n)
	}
}

func TestEnrichDateWindowBlocksDistantIncidents(t *testing.T) {
	f := newFixture(t, testConfig())
	// Same strings, but the incident happened ten days earlier: blocking
	// must keep it out of the candidate set.
	f.seedIncident("inc-1", datePtr(2024, time.May, 1))
	f.db.SeedEvent(matchingEvent("evt-1", datePtr(2024, time.May, 11)))

	stats, err := f.pipeline.EnrichBatch(context.Background(), true)
	if err != nil {
		t.Fatalf("EnrichBatch: %v", err)
	}
	if stats.Linked != 0 || stats.Created != 1 {
		t.Errorf("stats = %+v, want a new incident despite the textual match", stats)
	}
	if n := f.db.IncidentCount(); n != 2 {
		t.Errorf("incidents = %d, want 2", n)
	}
}

func TestEnrichBatchEmptyIsNoOp(t *testing.T) {
	f := newFixture(t, testConfig())
	stats, err := f.pipeline.EnrichBatch(context.Background(), true)
	if err != nil {
		t.Fatalf("EnrichBatch: %v", err)
	}
	if stats != (core.EnrichStats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestIncidentTitle(t *testing.T) {
	date := datePtr(2024, time.May, 10)
	tests := []struct {
		name  string
		event core.ExtractedEvent
		want  string
	}{
		{
			"victim known",
			core.ExtractedEvent{VictimName: strPtr("João da Silva"), ExtractedDate: date},
			"Morte de João da Silva",
		},
		{
			"victim blank falls back to date",
			core.ExtractedEvent{VictimName: strPtr("   "), ExtractedDate: date},
			"Homicídio - 10/05/2024",
		},
		{
			"date only",
			core.ExtractedEvent{ExtractedDate: date},
			"Homicídio - 10/05/2024",
		},
		{
			"nothing known",
			core.ExtractedEvent{},
			"Homicídio - Data desconhecida",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := incidentTitle(&tt.event); got != tt.want {
				t.Errorf("incidentTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
