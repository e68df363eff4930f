package pipeline

import (
	"context"
	"time"

	"vigia/internal/content"
	"vigia/internal/core"
	"vigia/internal/feeds"
	"vigia/internal/llm"
)

// FeedSource yields article candidates from the news aggregator.
type FeedSource interface {
	Stream(ctx context.Context, opts feeds.Options) <-chan core.FeedEntry
}

// URLResolver unwraps aggregator redirect URLs. Implementations never
// fail: an unresolvable URL comes back unchanged.
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) string
}

// ContentReconciler turns raw article HTML into a clean body and a
// publication date. Any of the results may be nil.
type ContentReconciler interface {
	Reconcile(html []byte) (*string, *content.Metadata, *time.Time)
}

// EventExtractor runs the structured-extraction prompt over one article.
// Implementations never fail: untrusted output degrades to a stub.
type EventExtractor interface {
	Extract(ctx context.Context, in llm.Input) llm.Extraction
	Degraded() bool
}
