package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrTransient marks fetch failures caused by the network or the
// upstream API. Callers treat these as a skip, not as fatal.
var ErrTransient = errors.New("transient fetch failure")

// Fetcher retrieves one logical document and decides whether it is
// worth keeping. It never touches the frontier or the store.
type Fetcher struct {
	source   Source
	stripper Stripper
	filter   *QualityFilter
	retry    RetryPolicy
	clock    Clock
	maxLinks int
	logger   *zap.Logger
}

// NewFetcher constructs a Fetcher. maxLinks caps the outbound links
// returned per article to bound crawl fan-out.
func NewFetcher(
	source Source,
	stripper Stripper,
	filter *QualityFilter,
	retry RetryPolicy,
	clock Clock,
	maxLinks int,
	logger *zap.Logger,
) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		source:   source,
		stripper: stripper,
		filter:   filter,
		retry:    retry,
		clock:    clock,
		maxLinks: maxLinks,
		logger:   logger,
	}
}

// Fetch retrieves title from the source, applies the quality filter and
// returns the cleaned article plus its capped outbound links. A nil
// article with nil error means the page was rejected by the filter,
// which is a normal outcome. Transient failures are retried per the
// policy and surface wrapped in ErrTransient once attempts run out.
func (f *Fetcher) Fetch(ctx context.Context, title string) (*Article, []string, error) {
	var (
		summary PageSummary
		content PageContent
	)
	for attempt := 0; ; attempt++ {
		var err error
		summary, content, err = f.retrieve(ctx, title)
		if err == nil {
			break
		}
		if !f.retry.ShouldRetry(err, attempt) {
			return nil, nil, fmt.Errorf("fetch %q: %w: %w", title, ErrTransient, err)
		}
		delay := f.retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("title", title),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return nil, nil, fmt.Errorf("fetch %q: %w: %w", title, ErrTransient, err)
		}
	}

	name := summary.Title
	if name == "" {
		name = title
	}
	if !f.filter.Accepts(name, content.HTML, summary.Extract) {
		f.logger.Debug("page rejected by quality filter", zap.String("title", name))
		return nil, nil, nil
	}

	clean := f.stripper.Strip(content.HTML)
	article := &Article{
		Title:        name,
		Summary:      summary.Extract,
		RawContent:   content.HTML,
		CleanContent: clean,
		URL:          summary.URL,
		WordCount:    len(strings.Fields(clean)),
		CreatedAt:    f.clock.Now(),
	}

	links := content.Links
	if len(links) > f.maxLinks {
		links = links[:f.maxLinks]
	}
	return article, links, nil
}

func (f *Fetcher) retrieve(ctx context.Context, title string) (PageSummary, PageContent, error) {
	summary, err := f.source.Summary(ctx, title)
	if err != nil {
		return PageSummary{}, PageContent{}, fmt.Errorf("summary: %w", err)
	}
	content, err := f.source.ContentAndLinks(ctx, title)
	if err != nil {
		return PageSummary{}, PageContent{}, fmt.Errorf("content: %w", err)
	}
	return summary, content, nil
}

// sleepContext waits for delay or until the context finishes.
func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
