package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vigia/internal/config"
	"vigia/internal/logger"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>search results</title>
    <item>
      <title>Homem é morto a tiros no Jacintinho</title>
      <link>https://news.example.com/articles/abc123</link>
      <pubDate>Fri, 10 May 2024 08:30:00 GMT</pubDate>
    </item>
    <item>
      <title>Investigação segue sem data</title>
      <link>https://news.example.com/articles/def456</link>
    </item>
  </channel>
</rss>`

func testFetcher(t *testing.T, baseURL string) *Fetcher {
	t.Helper()
	logger.SetDir(t.TempDir())
	return NewFetcher(config.Feed{
		BaseURL:   baseURL,
		Query:     "homicídio Maceió",
		UserAgent: "test-agent",
		Timeout:   "5s",
	})
}

func TestBuildFeedURL(t *testing.T) {
	got := BuildFeedURL("https://news.google.com", "homicídio Maceió after:2024-05-10 before:2024-05-11")
	if !strings.HasPrefix(got, "https://news.google.com/rss/search?q=") {
		t.Errorf("Unexpected URL prefix: %s", got)
	}
	for _, want := range []string{"hl=pt-BR", "gl=BR", "ceid=BR%3Apt-419"} {
		if !strings.Contains(got, want) && !strings.Contains(got, strings.ReplaceAll(want, "%3A", ":")) {
			t.Errorf("Expected %q in %s", want, got)
		}
	}
	if strings.Contains(got, " ") {
		t.Errorf("Query must be URL-encoded, got %s", got)
	}
}

func TestQueriesGrid(t *testing.T) {
	f := testFetcher(t, "https://example.com")

	// No dates: one query per enabled term.
	queries := f.Queries(Options{})
	if len(queries) != 1 {
		t.Fatalf("Expected 1 undated query, got %d", len(queries))
	}
	if queries[0] != "homicídio Maceió" {
		t.Errorf("Expected base query, got %q", queries[0])
	}

	queries = f.Queries(Options{Expand: true, Geo: true})
	wantTerms := 1 + len(topicTerms) + len(geoTerms)
	if len(queries) != wantTerms {
		t.Errorf("Expected %d expanded queries, got %d", wantTerms, len(queries))
	}

	// Three-day range crosses every term with one-day windows.
	start := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	queries = f.Queries(Options{StartDate: &start, EndDate: &end})
	if len(queries) != 3 {
		t.Fatalf("Expected 3 windowed queries, got %d: %v", len(queries), queries)
	}
	if queries[0] != "homicídio Maceió after:2024-05-10 before:2024-05-11" {
		t.Errorf("Unexpected first window: %q", queries[0])
	}
	if queries[2] != "homicídio Maceió after:2024-05-12 before:2024-05-13" {
		t.Errorf("Unexpected last window: %q", queries[2])
	}

	// End date is exclusive: a single-day range yields exactly one window.
	oneDayEnd := start.AddDate(0, 0, 1)
	queries = f.Queries(Options{StartDate: &start, EndDate: &oneDayEnd})
	if len(queries) != 1 {
		t.Errorf("Expected 1 query for [start, start+1), got %d", len(queries))
	}

	// Empty range yields nothing.
	queries = f.Queries(Options{StartDate: &start, EndDate: &start})
	if len(queries) != 0 {
		t.Errorf("Expected 0 queries for empty range, got %d", len(queries))
	}
}

func TestFetchParsesEntries(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if !strings.HasPrefix(r.URL.Path, "/rss/search") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, sampleRSS)
	}))
	defer srv.Close()

	f := testFetcher(t, srv.URL)
	entries := f.Fetch(context.Background(), Options{})

	if gotUA != "test-agent" {
		t.Errorf("Expected custom User-Agent, got %q", gotUA)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].URL != "https://news.example.com/articles/abc123" {
		t.Errorf("Unexpected first URL: %s", entries[0].URL)
	}
	if entries[0].Published == nil {
		t.Fatal("Expected first entry to carry a publication time")
	}
	want := time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)
	if !entries[0].Published.Equal(want) {
		t.Errorf("Published = %v, want %v", entries[0].Published, want)
	}
	if entries[1].Published != nil {
		t.Errorf("Expected second entry without publication time, got %v", entries[1].Published)
	}
}

func TestFetchSkipsFailingCells(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testFetcher(t, srv.URL)
	entries := f.Fetch(context.Background(), Options{Expand: true})
	if len(entries) != 0 {
		t.Errorf("Expected no entries from failing feed, got %d", len(entries))
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, sampleRSS)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := testFetcher(t, srv.URL)

	ch := f.Stream(ctx, Options{})
	<-ch // take one entry, then cancel mid-stream
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // channel closed, goroutine exited
			}
		case <-deadline:
			t.Fatal("Stream did not close after cancellation")
		}
	}
}
