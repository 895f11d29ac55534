package harvest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wikidex/wikidex/internal/metrics"
)

// flushTimeout bounds any store flush that runs detached from the run
// context, including the final one after cancellation.
const flushTimeout = 30 * time.Second

// SchedulerConfig controls Scheduler behavior. All values come from
// configuration, not hidden constants.
type SchedulerConfig struct {
	TargetArticles    int
	Workers           int
	BatchSize         int
	RateLimit         time.Duration
	CategoryPageLimit int
	SubcategoryLimit  int
	ProgressInterval  time.Duration
}

// Scheduler owns the crawl worker pool. Workers pull entries from the
// shared frontier, fetch articles, enqueue discovered links and append
// accepted records to a lock-protected batch that is flushed to the
// store in bulk.
type Scheduler struct {
	cfg      SchedulerConfig
	frontier *Frontier
	fetcher  *Fetcher
	source   Source
	store    Store
	clock    Clock
	logger   *zap.Logger

	mu    sync.Mutex
	batch []Article
	saved atomic.Int64
}

// NewScheduler constructs a Scheduler.
func NewScheduler(
	cfg SchedulerConfig,
	frontier *Frontier,
	fetcher *Fetcher,
	source Source,
	store Store,
	clock Clock,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 30 * time.Second
	}
	metrics.Init()
	return &Scheduler{
		cfg:      cfg,
		frontier: frontier,
		fetcher:  fetcher,
		source:   source,
		store:    store,
		clock:    clock,
		logger:   logger,
	}
}

// Run seeds the frontier, preloads the visited set from the store and
// blocks until the crawl finishes: target reached, frontier drained, or
// ctx canceled. Workers finish their in-flight fetch on cancellation and
// a final flush persists any partial batch before Run returns.
func (s *Scheduler) Run(ctx context.Context, seeds []FrontierEntry) error {
	if len(seeds) == 0 {
		return errors.New("no seeds provided")
	}

	s.preloadVisited(ctx)
	for _, seed := range seeds {
		s.frontier.EnqueueIfNew(seed)
	}

	start := s.clock.Now()
	s.logger.Info("crawl starting",
		zap.Int("target_articles", s.cfg.TargetArticles),
		zap.Int("workers", s.cfg.Workers),
		zap.Int("seeds", len(seeds)),
	)

	progressDone := make(chan struct{})
	go s.reportProgress(ctx, start, progressDone)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	close(progressDone)

	// The run context may already be canceled; the final flush still has
	// to land so no fetched record is lost.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	s.flush(flushCtx)

	p := s.progress(start)
	s.logger.Info("crawl finished",
		zap.Int("visited", p.Visited),
		zap.Int64("saved", p.Saved),
		zap.Duration("elapsed", p.Elapsed),
		zap.Float64("articles_per_sec", p.PerSecond),
	)
	return nil
}

// Saved returns the number of records successfully persisted so far.
func (s *Scheduler) Saved() int64 {
	return s.saved.Load()
}

func (s *Scheduler) preloadVisited(ctx context.Context) {
	titles, err := s.store.Titles(ctx)
	if err != nil {
		s.logger.Warn("could not preload visited titles", zap.Error(err))
		return
	}
	s.frontier.MarkVisited(titles...)
	s.logger.Info("visited set preloaded", zap.Int("titles", len(titles)))
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	processed := 0
	for {
		if ctx.Err() != nil {
			break
		}
		if s.frontier.VisitedCount() >= s.cfg.TargetArticles {
			break
		}
		entry, ok := s.frontier.TryDequeue()
		if !ok {
			break
		}
		// Re-check under the frontier lock: another worker may have
		// claimed the same title between enqueue and dequeue.
		if !s.frontier.ClaimVisit(entry.Title) {
			continue
		}

		switch entry.Kind {
		case KindCategory:
			s.expandCategory(ctx, entry.Title)
		case KindArticle:
			if s.processArticle(ctx, entry.Title) {
				processed++
			}
		}

		if err := sleepContext(ctx, s.cfg.RateLimit); err != nil {
			break
		}
	}
	s.logger.Debug("worker finished", zap.Int("worker", id), zap.Int("articles", processed))
}

// processArticle fetches one article and reports whether it was kept.
func (s *Scheduler) processArticle(ctx context.Context, title string) bool {
	start := s.clock.Now()
	// A dequeued fetch runs to completion even while the run is being
	// stopped; the source client's own timeout still bounds it. The run
	// context gates dequeueing and the rate-limit sleep instead.
	article, links, err := s.fetcher.Fetch(context.WithoutCancel(ctx), title)
	elapsed := s.clock.Now().Sub(start)

	switch {
	case err != nil:
		// Transient failure after retries: skip, title stays visited so
		// the run does not hammer the same page again.
		metrics.ObserveFetch(metrics.FetchOutcomeFailed, elapsed)
		s.logger.Warn("fetch failed, skipping", zap.String("title", title), zap.Error(err))
		return false
	case article == nil:
		metrics.ObserveFetch(metrics.FetchOutcomeRejected, elapsed)
		return false
	}

	metrics.ObserveFetch(metrics.FetchOutcomeSaved, elapsed)
	for _, link := range links {
		s.frontier.EnqueueIfNew(FrontierEntry{Kind: KindArticle, Title: link})
	}
	s.append(ctx, *article)
	return true
}

// expandCategory pages through the category listing and offers members
// to the frontier: namespace 0 as articles, namespace 14 as
// subcategories capped per parent.
func (s *Scheduler) expandCategory(ctx context.Context, category string) {
	members := s.collectMembers(ctx, category)
	subcategories := 0
	enqueued := 0
	for _, m := range members {
		switch m.Namespace {
		case NamespaceArticle:
			if s.frontier.EnqueueIfNew(FrontierEntry{Kind: KindArticle, Title: m.Title}) {
				enqueued++
			}
		case NamespaceCategory:
			if subcategories >= s.cfg.SubcategoryLimit {
				continue
			}
			if s.frontier.EnqueueIfNew(FrontierEntry{Kind: KindCategory, Title: m.Title}) {
				subcategories++
			}
		}
	}
	s.logger.Info("category expanded",
		zap.String("category", category),
		zap.Int("members", len(members)),
		zap.Int("articles_enqueued", enqueued),
		zap.Int("subcategories_enqueued", subcategories),
	)
}

func (s *Scheduler) collectMembers(ctx context.Context, category string) []CategoryMember {
	var members []CategoryMember
	cont := ""
	for len(members) < s.cfg.CategoryPageLimit {
		page, err := s.source.CategoryMembers(ctx, category, cont)
		if err != nil {
			s.logger.Warn("category listing failed",
				zap.String("category", category),
				zap.Error(err),
			)
			break
		}
		members = append(members, page.Members...)
		if page.Continue == "" {
			break
		}
		cont = page.Continue
	}
	if len(members) > s.cfg.CategoryPageLimit {
		members = members[:s.cfg.CategoryPageLimit]
	}
	return members
}

// append adds the article to the shared batch and flushes once the
// batch is full. The store call happens outside the lock so other
// workers keep making progress during the write.
func (s *Scheduler) append(ctx context.Context, article Article) {
	s.mu.Lock()
	s.batch = append(s.batch, article)
	if len(s.batch) < s.cfg.BatchSize {
		s.mu.Unlock()
		return
	}
	pending := s.batch
	s.batch = nil
	s.mu.Unlock()
	// A full batch holds records fetched before any stop signal, so the
	// flush must not die with the run context.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	s.persist(flushCtx, pending)
}

// flush persists whatever is currently buffered.
func (s *Scheduler) flush(ctx context.Context) {
	s.mu.Lock()
	pending := s.batch
	s.batch = nil
	s.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	s.persist(ctx, pending)
}

// persist writes one batch, retrying once. A batch that fails twice is
// dropped with a warning; crawling is best-effort and never dies on a
// store error.
func (s *Scheduler) persist(ctx context.Context, pending []Article) {
	inserted, err := s.store.BatchUpsert(ctx, pending)
	if err != nil {
		s.logger.Warn("batch flush failed, retrying once", zap.Int("records", len(pending)), zap.Error(err))
		inserted, err = s.store.BatchUpsert(ctx, pending)
	}
	if err != nil {
		metrics.ObserveFlush("dropped")
		s.logger.Warn("batch dropped after retry", zap.Int("records", len(pending)), zap.Error(err))
		return
	}
	metrics.ObserveFlush("ok")
	s.saved.Add(inserted)
	s.logger.Info("batch flushed",
		zap.Int("records", len(pending)),
		zap.Int64("inserted", inserted),
	)
}

func (s *Scheduler) progress(start time.Time) Progress {
	elapsed := s.clock.Now().Sub(start)
	visited := s.frontier.VisitedCount()
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(visited) / secs
	}
	return Progress{
		Visited:    visited,
		Saved:      s.saved.Load(),
		QueueDepth: s.frontier.Depth(),
		Elapsed:    elapsed,
		PerSecond:  rate,
	}
}

// reportProgress logs throughput periodically. Purely observational.
func (s *Scheduler) reportProgress(ctx context.Context, start time.Time, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := s.progress(start)
			metrics.SetFrontierDepth(p.QueueDepth)
			metrics.SetVisited(p.Visited)
			s.logger.Info("crawl progress",
				zap.Int("visited", p.Visited),
				zap.Int("target", s.cfg.TargetArticles),
				zap.Int("queued", p.QueueDepth),
				zap.Int64("saved", p.Saved),
				zap.Float64("articles_per_sec", p.PerSecond),
			)
		}
	}
}
