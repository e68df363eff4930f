package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"vigia/internal/content"
	"vigia/internal/core"
)

func TestDownloadStoresReconciledBody(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedSource("src-1", "https://news.example/a", core.StatusPending, nil)
	f.fetcher.pages["https://news.example/a"] = []byte("Homem foi morto a tiros no Jacintinho.")

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}

	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusDownloaded {
		t.Errorf("status = %q, want downloaded", src.Status)
	}
	if src.Content == nil || *src.Content != "Homem foi morto a tiros no Jacintinho." {
		t.Errorf("content = %v", src.Content)
	}
	if src.ResolvedURL != nil {
		t.Errorf("resolved url = %v, want nil when the URL is not an aggregator link", src.ResolvedURL)
	}

	stats, _, _ := f.pipeline.Stats()
	if stats.Attempted != 1 || stats.Downloaded != 1 {
		t.Errorf("stats = %+v, want one download", stats)
	}
}

func TestDownloadResolvesAggregatorURL(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedSource("src-1", "https://news.google.com/rss/articles/abc", core.StatusPending, nil)
	f.resolver.mapping["https://news.google.com/rss/articles/abc"] = "https://tribunahoje.com/materia"
	f.fetcher.pages["https://tribunahoje.com/materia"] = []byte("Corpo encontrado no Benedito Bentes.")

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}

	src, _ := f.db.SourceByID("src-1")
	if src.ResolvedURL == nil || *src.ResolvedURL != "https://tribunahoje.com/materia" {
		t.Errorf("resolved url = %v, want the publisher URL stored", src.ResolvedURL)
	}
	fetched := f.fetcher.Fetched()
	if len(fetched) != 1 || fetched[0] != "https://tribunahoje.com/materia" {
		t.Errorf("fetched = %v, want only the publisher URL", fetched)
	}
}

func TestDownloadReusesStoredResolvedURL(t *testing.T) {
	f := newFixture(t, testConfig())
	f.db.SeedSource(core.Source{
		ID:          "src-1",
		URL:         "https://news.google.com/rss/articles/abc",
		ResolvedURL: strPtr("https://tribunahoje.com/materia"),
		Status:      core.StatusPending,
		FetchedAt:   time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	})
	f.fetcher.pages["https://tribunahoje.com/materia"] = []byte("Homicídio registrado.")

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}
	if f.resolver.Calls() != 0 {
		t.Errorf("resolver called %d times, want 0 with a stored URL", f.resolver.Calls())
	}
	fetched := f.fetcher.Fetched()
	if len(fetched) != 1 || fetched[0] != "https://tribunahoje.com/materia" {
		t.Errorf("fetched = %v", fetched)
	}
}

func TestDownloadPermanentFailureSettlesRecord(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedSource("src-1", "https://news.example/gone", core.StatusPending, nil)
	// No canned page: the stub fetcher answers with a permanent 404.

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("permanent failures are settled, not re-raised: %v", err)
	}

	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusFailed {
		t.Errorf("status = %q, want failed", src.Status)
	}
	stats, _, _ := f.pipeline.Stats()
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}

func TestDownloadTransientFailurePropagates(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedSource("src-1", "https://news.example/flaky", core.StatusPending, nil)
	f.fetcher.errs["https://news.example/flaky"] = errors.New("status 503")

	err := f.pipeline.downloadOne(context.Background(), "src-1")
	if err == nil {
		t.Fatal("transient failure must propagate to the queue")
	}

	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusPending {
		t.Errorf("status = %q, want pending (untouched for retry)", src.Status)
	}
	if src.Content != nil {
		t.Error("content stored despite the failed fetch")
	}
}

func TestDownloadEmptyBodySettlesRecord(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedSource("src-1", "https://news.example/paywall", core.StatusPending, nil)
	f.fetcher.pages["https://news.example/paywall"] = []byte("<html></html>")
	f.reconciler.fn = func(html []byte) (*string, *content.Metadata, *time.Time) {
		return nil, nil, nil
	}

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}
	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusFailed {
		t.Errorf("status = %q, want failed when no body is extractable", src.Status)
	}
}

func TestDownloadSkipsFailedWithoutForce(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedSource("src-1", "https://news.example/a", core.StatusFailed, nil)
	f.fetcher.pages["https://news.example/a"] = []byte("Homicídio.")

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}
	if len(f.fetcher.Fetched()) != 0 {
		t.Error("failed source was fetched without force")
	}
	stats, _, _ := f.pipeline.Stats()
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
}

func TestDownloadForceHealsFailedSource(t *testing.T) {
	cfg := testConfig()
	cfg.Force = true
	f := newFixture(t, cfg)
	f.seedSource("src-1", "https://news.example/a", core.StatusFailed, nil)
	f.fetcher.pages["https://news.example/a"] = []byte("Vítima não resistiu aos ferimentos.")

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}
	src, _ := f.db.SourceByID("src-1")
	if src.Status != core.StatusDownloaded {
		t.Errorf("status = %q, want failed healed to downloaded under force", src.Status)
	}
	if src.Content == nil {
		t.Error("content missing after forced re-download")
	}
}

func TestDownloadKeepsExistingContent(t *testing.T) {
	f := newFixture(t, testConfig())
	body := "Conteúdo já baixado."
	f.seedSource("src-1", "https://news.example/a", core.StatusDownloaded, &body)

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}
	if len(f.fetcher.Fetched()) != 0 {
		t.Error("refetched a source that already has content")
	}
	src, _ := f.db.SourceByID("src-1")
	if src.Content == nil || *src.Content != body {
		t.Errorf("content = %v, want untouched", src.Content)
	}
}

func TestDownloadForceRefetchesContent(t *testing.T) {
	cfg := testConfig()
	cfg.Force = true
	f := newFixture(t, cfg)
	body := "Versão antiga."
	f.seedSource("src-1", "https://news.example/a", core.StatusDownloaded, &body)
	f.fetcher.pages["https://news.example/a"] = []byte("Versão nova do texto sobre o homicídio.")

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}
	src, _ := f.db.SourceByID("src-1")
	if src.Content == nil || *src.Content != "Versão nova do texto sobre o homicídio." {
		t.Errorf("content = %v, want replaced under force", src.Content)
	}
}

func TestDownloadPrefersPageDateOverFeedDate(t *testing.T) {
	f := newFixture(t, testConfig())
	feedDate := datePtr(2024, time.May, 8)
	f.db.SeedSource(core.Source{
		ID:          "src-1",
		URL:         "https://news.example/a",
		Status:      core.StatusPending,
		PublishedAt: feedDate,
		FetchedAt:   time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	})
	f.fetcher.pages["https://news.example/a"] = []byte("ignored")
	pageDate := datePtr(2024, time.May, 9)
	f.reconciler.fn = func(html []byte) (*string, *content.Metadata, *time.Time) {
		return strPtr("Homem assassinado."), nil, pageDate
	}

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}
	src, _ := f.db.SourceByID("src-1")
	if src.PublishedAt == nil || !src.PublishedAt.Equal(*pageDate) {
		t.Errorf("published_at = %v, want the page's own date %v", src.PublishedAt, pageDate)
	}
}

func TestDownloadFallsBackToFeedDateWhenPageDateInvalid(t *testing.T) {
	f := newFixture(t, testConfig())
	feedDate := datePtr(2024, time.May, 8)
	f.db.SeedSource(core.Source{
		ID:          "src-1",
		URL:         "https://news.example/a",
		Status:      core.StatusPending,
		PublishedAt: feedDate,
		FetchedAt:   time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	})
	f.fetcher.pages["https://news.example/a"] = []byte("ignored")
	future := time.Now().UTC().Add(48 * time.Hour)
	f.reconciler.fn = func(html []byte) (*string, *content.Metadata, *time.Time) {
		return strPtr("Homem assassinado."), nil, &future
	}

	if err := f.pipeline.downloadOne(context.Background(), "src-1"); err != nil {
		t.Fatalf("downloadOne: %v", err)
	}
	src, _ := f.db.SourceByID("src-1")
	if src.PublishedAt == nil || !src.PublishedAt.Equal(*feedDate) {
		t.Errorf("published_at = %v, want feed date %v (page date in the future)", src.PublishedAt, feedDate)
	}
}

func TestDownloadMissingSourceFails(t *testing.T) {
	f := newFixture(t, testConfig())
	if err := f.pipeline.downloadOne(context.Background(), "ghost"); err == nil {
		t.Fatal("downloadOne succeeded for a source that does not exist")
	}
	stats, _, _ := f.pipeline.Stats()
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}
