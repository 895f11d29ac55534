package harvest

import (
	"context"
	"time"
)

// Source retrieves pages and category listings from the upstream
// encyclopedia API.
type Source interface {
	Summary(ctx context.Context, title string) (PageSummary, error)
	ContentAndLinks(ctx context.Context, title string) (PageContent, error)
	CategoryMembers(ctx context.Context, category, cont string) (CategoryPage, error)
}

// Stripper converts raw markup into plain text.
type Stripper interface {
	Strip(html string) string
}

// Store persists accepted articles.
type Store interface {
	// BatchUpsert inserts the records, skipping titles already present,
	// and returns the number of rows actually inserted.
	BatchUpsert(ctx context.Context, articles []Article) (int64, error)
	// Titles returns every stored title, used to preload the visited set.
	Titles(ctx context.Context) ([]string, error)
}

// RetryPolicy decides whether and how long to wait between fetch attempts.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
