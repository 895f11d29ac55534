// Package main wires together the wikidex binaries: the crawler, the
// index builder and the search service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wikidex/wikidex/internal/api"
	"github.com/wikidex/wikidex/internal/clock/system"
	"github.com/wikidex/wikidex/internal/config"
	"github.com/wikidex/wikidex/internal/harvest"
	"github.com/wikidex/wikidex/internal/index"
	"github.com/wikidex/wikidex/internal/logging"
	"github.com/wikidex/wikidex/internal/markup"
	"github.com/wikidex/wikidex/internal/search"
	"github.com/wikidex/wikidex/internal/source/mediawiki"
	"github.com/wikidex/wikidex/internal/storage/postgres"
)

const usage = `Usage: wikidex <command> [flags]

Commands:
  crawl     harvest articles from the encyclopedia into the store
  reindex   rebuild the search model from the stored corpus
  serve     run the HTTP search API
  search    run one query from the command line

Run "wikidex <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file")
	limit := fs.Int("limit", 10, "maximum results (search command)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "crawl":
		err = runCrawl(ctx, cfg, logger)
	case "reindex":
		err = runReindex(ctx, cfg, logger)
	case "serve":
		err = runServe(ctx, stop, cfg, logger)
	case "search":
		err = runSearch(ctx, cfg, logger, strings.Join(fs.Args(), " "), *limit)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func runCrawl(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	clock := system.New()
	source := mediawiki.New(mediawiki.Config{
		RestBaseURL:   cfg.Source.RestBaseURL,
		ActionBaseURL: cfg.Source.ActionBaseURL,
		UserAgent:     cfg.Source.UserAgent,
		Timeout:       cfg.Source.Timeout(),
	}, logger.Named("source"))

	fetcher := harvest.NewFetcher(
		source,
		markup.New(),
		harvest.NewQualityFilter(cfg.Crawl.MinContentLength, cfg.Crawl.MinSummaryLength),
		harvest.NewExponentialRetryPolicy(
			cfg.Source.MaxRetries,
			time.Duration(cfg.Source.BackoffInitialMs)*time.Millisecond,
			time.Duration(cfg.Source.BackoffMaxMs)*time.Millisecond,
		),
		clock,
		cfg.Crawl.MaxLinksPerArticle,
		logger.Named("fetcher"),
	)

	scheduler := harvest.NewScheduler(
		harvest.SchedulerConfig{
			TargetArticles:    cfg.Crawl.TargetArticles,
			Workers:           cfg.Crawl.Workers,
			BatchSize:         cfg.Crawl.BatchSize,
			RateLimit:         cfg.Crawl.RateLimit(),
			CategoryPageLimit: cfg.Crawl.CategoryPageLimit,
			SubcategoryLimit:  cfg.Crawl.SubcategoryLimit,
			ProgressInterval:  cfg.Crawl.ProgressInterval(),
		},
		harvest.NewFrontier(cfg.Crawl.MaxFrontierSize),
		fetcher,
		source,
		store,
		clock,
		logger.Named("scheduler"),
	)

	seeds := make([]harvest.FrontierEntry, 0, len(cfg.Crawl.SeedCategories))
	for _, category := range cfg.Crawl.SeedCategories {
		seeds = append(seeds, harvest.FrontierEntry{Kind: harvest.KindCategory, Title: category})
	}

	if err := scheduler.Run(ctx, seeds); err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	logger.Info("crawl finished", zap.Int64("saved", scheduler.Saved()))
	return nil
}

func runReindex(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := newEngine(store, cfg, logger)
	if err := engine.Rebuild(ctx); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, stop context.CancelFunc, cfg config.Config, logger *zap.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := newEngine(store, cfg, logger)
	if err := engine.LoadOrBuild(ctx); err != nil {
		// Serve anyway: readyz stays unavailable until a reindex
		// succeeds, but health and stats endpoints still work.
		logger.Warn("index unavailable at startup", zap.Error(err))
	}

	apiServer := api.NewServer(engine, store, cfg.Server, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func runSearch(ctx context.Context, cfg config.Config, logger *zap.Logger, query string, limit int) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("search requires a query argument")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := newEngine(store, cfg, logger)
	if err := engine.LoadOrBuild(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	results, err := engine.Search(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. %-50s %.4f  %s\n", i+1, r.Title, r.Score, r.URL)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (*postgres.ArticleStore, error) {
	store, err := postgres.NewArticleStore(ctx, postgres.ArticleStoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func newEngine(store *postgres.ArticleStore, cfg config.Config, logger *zap.Logger) *search.Engine {
	builder := index.NewBuilder(index.BuilderConfig{
		MaxFeatures:      cfg.Index.MaxFeatures,
		MinDocFreq:       cfg.Index.MinDocFreq,
		MaxDocFreqFrac:   cfg.Index.MaxDocFreqFrac,
		MinContentLength: cfg.Index.MinIndexLength,
	}, system.New(), logger.Named("index"))
	return search.NewEngine(store, builder, cfg.Index.SnapshotPath, cfg.Index.MinIndexLength, logger.Named("search"))
}
