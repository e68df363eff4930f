package mocks

import (
	"context"
	"fmt"
	"sync"

	"vigia/internal/core"
	"vigia/internal/feeds"
	"vigia/internal/fetch"
	"vigia/internal/llm"
	"vigia/internal/notify"
)

// MockFeedSource provides a mock implementation of the pipeline's feed
// source, replaying canned entries.
type MockFeedSource struct {
	Entries    []core.FeedEntry
	StreamFunc func(ctx context.Context, opts feeds.Options) <-chan core.FeedEntry

	mu       sync.Mutex
	lastOpts feeds.Options
}

func (m *MockFeedSource) Stream(ctx context.Context, opts feeds.Options) <-chan core.FeedEntry {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, opts)
	}
	m.mu.Lock()
	m.lastOpts = opts
	m.mu.Unlock()
	out := make(chan core.FeedEntry)
	go func() {
		defer close(out)
		for _, entry := range m.Entries {
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// LastOptions returns the options of the most recent Stream call.
func (m *MockFeedSource) LastOptions() feeds.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

// MockURLResolver provides a mock implementation of the pipeline's URL
// resolver backed by a static mapping. URLs without a mapping resolve to
// themselves.
type MockURLResolver struct {
	Mapping     map[string]string
	ResolveFunc func(ctx context.Context, rawURL string) string

	mu    sync.Mutex
	calls []string
}

func (m *MockURLResolver) Resolve(ctx context.Context, rawURL string) string {
	m.mu.Lock()
	m.calls = append(m.calls, rawURL)
	m.mu.Unlock()
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, rawURL)
	}
	if resolved, ok := m.Mapping[rawURL]; ok {
		return resolved
	}
	return rawURL
}

// Calls returns every URL passed to Resolve so far.
func (m *MockURLResolver) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockFetcher provides a mock implementation of fetch.Fetcher serving
// canned pages. Unknown URLs fail permanently, like a live 404.
type MockFetcher struct {
	Pages     map[string]string
	Errs      map[string]error
	FetchFunc func(ctx context.Context, url string) ([]byte, error)

	mu      sync.Mutex
	fetched []string
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, url)
	m.mu.Unlock()
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, url)
	}
	if err, ok := m.Errs[url]; ok {
		return nil, err
	}
	if page, ok := m.Pages[url]; ok {
		return []byte(page), nil
	}
	return nil, fmt.Errorf("%w: status 404 for %s", fetch.ErrPermanent, url)
}

// Fetched returns every URL passed to Fetch so far.
func (m *MockFetcher) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}

// MockExtractor provides a mock implementation of the pipeline's event
// extractor. Without an ExtractFunc it replies with the degraded stub.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, in llm.Input) llm.Extraction
	DegradedVal bool

	mu     sync.Mutex
	inputs []llm.Input
}

func (m *MockExtractor) Extract(ctx context.Context, in llm.Input) llm.Extraction {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, in)
	}
	return llm.Stub()
}

func (m *MockExtractor) Degraded() bool { return m.DegradedVal }

// Inputs returns every input passed to Extract so far.
func (m *MockExtractor) Inputs() []llm.Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Input(nil), m.inputs...)
}

// MockTextGenerator provides a mock implementation of llm.TextGenerator
// replying with canned text.
type MockTextGenerator struct {
	Reply        string
	Err          error
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (m *MockTextGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// Prompts returns every prompt passed to GenerateText so far.
func (m *MockTextGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// MockNotifier provides a mock implementation of notify.Notifier that
// records every event it receives.
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, event notify.Event) error

	mu     sync.Mutex
	events []notify.Event
}

func (m *MockNotifier) Notify(ctx context.Context, event notify.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, event)
	}
	return nil
}

// Events returns every event delivered so far.
func (m *MockNotifier) Events() []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Event(nil), m.events...)
}
