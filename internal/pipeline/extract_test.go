package pipeline

import (
	"context"
	"testing"
	"time"

	"vigia/internal/core"
	"vigia/internal/llm"
)

func violentExtraction(in llm.Input) llm.Extraction {
	return llm.Extraction{
		IsValid:    true,
		Summary:    "Homem foi assassinado a tiros no Jacintinho.",
		VictimName: strPtr("João da Silva"),
		Location:   strPtr("bairro Jacintinho"),
		Date:       datePtr(2024, time.May, 10),
		Confidence: 0.85,
	}
}

func TestExtractWritesEvent(t *testing.T) {
	f := newFixture(t, testConfig())
	published := datePtr(2024, time.May, 10)
	f.db.SeedSource(core.Source{
		ID:          "src-1",
		URL:         "https://news.example/a",
		Status:      core.StatusDownloaded,
		Content:     strPtr("João da Silva foi assassinado a tiros no bairro Jacintinho."),
		PublishedAt: published,
		FetchedAt:   time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC),
	})
	f.extractor.fn = violentExtraction

	if err := f.pipeline.extractOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("extractOne: %v", err)
	}

	inputs := f.extractor.Inputs()
	if len(inputs) != 1 {
		t.Fatalf("extractor calls = %d, want 1", len(inputs))
	}
	in := inputs[0]
	if len(in.Keywords) == 0 || in.Keywords[0] != "assassinado" {
		t.Errorf("keywords = %v, want the lexicon matches, assassinado first", in.Keywords)
	}
	if in.PublishedAt == nil || !in.PublishedAt.Equal(*published) {
		t.Errorf("anchor = %v, want publication date", in.PublishedAt)
	}

	event, ok := f.db.EventBySourceID("src-1")
	if !ok {
		t.Fatal("event row missing")
	}
	if event.Summary != "Homem foi assassinado a tiros no Jacintinho." {
		t.Errorf("summary = %q", event.Summary)
	}
	if event.VictimName == nil || *event.VictimName != "João da Silva" {
		t.Errorf("victim = %v", event.VictimName)
	}
	if event.Confidence != 0.85 {
		t.Errorf("confidence = %v", event.Confidence)
	}
	if event.IncidentID != nil {
		t.Error("fresh extraction must start unlinked")
	}

	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusProcessed {
		t.Errorf("status = %q, want processed", src.Status)
	}
	_, stats, _ := f.pipeline.Stats()
	if stats.Extracted != 1 {
		t.Errorf("Extracted = %d, want 1", stats.Extracted)
	}
}

func TestExtractAnchorsOnDiscoveryWhenUnpublished(t *testing.T) {
	f := newFixture(t, testConfig())
	fetchedAt := time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC)
	f.db.SeedSource(core.Source{
		ID:        "src-1",
		URL:       "https://news.example/a",
		Status:    core.StatusDownloaded,
		Content:   strPtr("Corpo encontrado com marcas de disparos."),
		FetchedAt: fetchedAt,
	})
	f.extractor.fn = violentExtraction

	if err := f.pipeline.extractOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("extractOne: %v", err)
	}
	inputs := f.extractor.Inputs()
	if len(inputs) != 1 {
		t.Fatalf("extractor calls = %d, want 1", len(inputs))
	}
	if inputs[0].PublishedAt == nil || !inputs[0].PublishedAt.Equal(fetchedAt) {
		t.Errorf("anchor = %v, want discovery time %v", inputs[0].PublishedAt, fetchedAt)
	}
}

func TestExtractKeywordGateDiscards(t *testing.T) {
	f := newFixture(t, testConfig())
	f.db.SeedSource(core.Source{
		ID:        "src-1",
		URL:       "https://news.example/a",
		Status:    core.StatusDownloaded,
		Content:   strPtr("Prefeitura inaugura nova praça no centro da cidade."),
		FetchedAt: time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC),
	})

	if err := f.pipeline.extractOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("extractOne: %v", err)
	}

	if len(f.extractor.Inputs()) != 0 {
		t.Error("model consulted for an article without violence keywords")
	}
	if _, ok := f.db.EventBySourceID("src-1"); ok {
		t.Error("event written for a discarded article")
	}
	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusProcessed {
		t.Errorf("status = %q, want processed (a negative answer is an answer)", src.Status)
	}
	_, stats, _ := f.pipeline.Stats()
	if stats.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", stats.Discarded)
	}
}

func TestExtractModelRejectionDiscards(t *testing.T) {
	f := newFixture(t, testConfig())
	f.db.SeedSource(core.Source{
		ID:        "src-1",
		URL:       "https://news.example/a",
		Status:    core.StatusDownloaded,
		Content:   strPtr("Filme sobre homicídio estreia nos cinemas de Maceió."),
		FetchedAt: time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC),
	})
	f.extractor.fn = func(in llm.Input) llm.Extraction {
		return llm.Extraction{IsValid: false}
	}

	if err := f.pipeline.extractOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("extractOne: %v", err)
	}
	if _, ok := f.db.EventBySourceID("src-1"); ok {
		t.Error("event written for a rejected article")
	}
	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusProcessed {
		t.Errorf("status = %q, want processed", src.Status)
	}
}

func TestExtractSkipsSettledSources(t *testing.T) {
	tests := []struct {
		name   string
		status core.SourceStatus
	}{
		{"processed", core.StatusProcessed},
		{"failed", core.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig())
			f.seedSource("src-1", "https://news.example/a", tt.status, strPtr("homicídio"))

			if err := f.pipeline.extractOne(context.Background(), "src-1"); err != nil {
				t.Fatalf("extractOne: %v", err)
			}
			if len(f.extractor.Inputs()) != 0 {
				t.Error("extractor ran for a settled source")
			}
			_, stats, _ := f.pipeline.Stats()
			if stats.Skipped != 1 {
				t.Errorf("Skipped = %d, want 1", stats.Skipped)
			}
		})
	}
}

func TestExtractDownloadsMissingContentInline(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedSource("src-1", "https://news.example/a", core.StatusPending, nil)
	f.fetcher.pages["https://news.example/a"] = []byte("Homem executado a tiros no Vergel do Lago.")
	f.extractor.fn = violentExtraction

	if err := f.pipeline.extractOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("extractOne: %v", err)
	}
	if len(f.fetcher.Fetched()) != 1 {
		t.Errorf("fetches = %d, want the inline download", len(f.fetcher.Fetched()))
	}
	if _, ok := f.db.EventBySourceID("src-1"); !ok {
		t.Error("event missing after inline download and extraction")
	}
	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusProcessed {
		t.Errorf("status = %q, want processed", src.Status)
	}
}

func TestExtractSkipsWhenInlineDownloadFailsPermanently(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedSource("src-1", "https://news.example/gone", core.StatusPending, nil)
	// No canned page: the inline download hits a permanent 404.

	if err := f.pipeline.extractOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("extractOne: %v", err)
	}
	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusFailed {
		t.Errorf("status = %q, want failed", src.Status)
	}
	_, stats, _ := f.pipeline.Stats()
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
}

func TestExtractForceUpdatesEventInPlace(t *testing.T) {
	cfg := testConfig()
	cfg.Force = true
	f := newFixture(t, cfg)
	f.db.SeedSource(core.Source{
		ID:        "src-1",
		URL:       "https://news.example/a",
		Status:    core.StatusProcessed,
		Content:   strPtr("versão antiga"),
		FetchedAt: time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC),
	})
	f.db.SeedEvent(core.ExtractedEvent{
		ID:         "evt-original",
		SourceID:   "src-1",
		Summary:    "Resumo antigo.",
		Confidence: 0.4,
		CreatedAt:  time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC),
	})
	f.fetcher.pages["https://news.example/a"] = []byte("Homem foi assassinado no Jacintinho, segundo a polícia civil.")
	f.extractor.fn = violentExtraction

	if err := f.pipeline.extractOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("extractOne: %v", err)
	}

	event, ok := f.db.EventBySourceID("src-1")
	if !ok {
		t.Fatal("event row missing")
	}
	if event.ID != "evt-original" {
		t.Errorf("event id = %q, want the original row updated in place", event.ID)
	}
	if event.Summary != "Homem foi assassinado a tiros no Jacintinho." {
		t.Errorf("summary = %q, want refreshed", event.Summary)
	}
	if event.Confidence != 0.85 {
		t.Errorf("confidence = %v, want refreshed", event.Confidence)
	}
}

func TestExtractStubEventWhenModelUnavailable(t *testing.T) {
	f := newFixture(t, testConfig())
	f.extractor.degraded = true // default fn answers with the stub
	f.db.SeedSource(core.Source{
		ID:        "src-1",
		URL:       "https://news.example/a",
		Status:    core.StatusDownloaded,
		Content:   strPtr("Duplo homicídio registrado pela polícia militar."),
		FetchedAt: time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC),
	})

	if err := f.pipeline.extractOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("extractOne: %v", err)
	}
	event, ok := f.db.EventBySourceID("src-1")
	if !ok {
		t.Fatal("event row missing")
	}
	stub := llm.Stub()
	if event.Summary != stub.Summary {
		t.Errorf("summary = %q, want stub %q", event.Summary, stub.Summary)
	}
	if event.Confidence != llm.DefaultConfidence {
		t.Errorf("confidence = %v, want %v", event.Confidence, llm.DefaultConfidence)
	}
	if event.ExtractedDate != nil {
		t.Errorf("date = %v, want nil on a stub", event.ExtractedDate)
	}
}
