// Package postgres provides Postgres-backed persistence for harvested
// articles.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wikidex/wikidex/internal/harvest"
)

// ErrNotFound is returned when an article id does not exist.
var ErrNotFound = errors.New("article not found")

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	maxTitleLength = 255
	maxURLLength   = 500
)

// ArticleStoreConfig controls the Postgres connection pool.
type ArticleStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// ArticleStore reads and writes article rows in Postgres.
type ArticleStore struct {
	pool  pgxPool
	table string
}

// Stats summarizes the stored corpus.
type Stats struct {
	Total    int64
	AvgWords float64
	MaxWords int
	MinWords int
}

// NewArticleStore creates a Postgres-backed ArticleStore using the
// provided config.
func NewArticleStore(ctx context.Context, cfg ArticleStoreConfig) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "wiki_articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ArticleStore{pool: pool, table: table}, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewArticleStoreWithPool(pool pgxPool, table string) (*ArticleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "wiki_articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArticleStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the article table if it does not exist.
func (s *ArticleStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	title VARCHAR(255) UNIQUE NOT NULL,
	summary TEXT,
	content TEXT,
	clean_content TEXT,
	url VARCHAR(500),
	word_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// BatchUpsert inserts the articles in one round trip. Titles already
// present are skipped, which makes ingestion idempotent. Returns the
// number of rows actually inserted.
func (s *ArticleStore) BatchUpsert(ctx context.Context, articles []harvest.Article) (int64, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (title, summary, content, clean_content, url, word_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (title) DO NOTHING`, s.table)

	batch := &pgx.Batch{}
	for _, a := range articles {
		batch.Queue(query,
			truncate(a.Title, maxTitleLength),
			a.Summary,
			a.RawContent,
			a.CleanContent,
			truncate(a.URL, maxURLLength),
			a.WordCount,
			a.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	var inserted int64
	for range articles {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("batch upsert: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// Titles returns every stored article title.
func (s *ArticleStore) Titles(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT title FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titles: %w", err)
	}
	return titles, nil
}

// FetchAll returns all articles whose clean content exceeds
// minContentLength, ordered by id so index rows line up with store keys
// deterministically.
func (s *ArticleStore) FetchAll(ctx context.Context, minContentLength int) ([]harvest.Article, error) {
	query := fmt.Sprintf(`
SELECT id, title, summary, clean_content
FROM %s
WHERE clean_content IS NOT NULL AND LENGTH(clean_content) > $1
ORDER BY id`, s.table)

	rows, err := s.pool.Query(ctx, query, minContentLength)
	if err != nil {
		return nil, fmt.Errorf("select articles: %w", err)
	}
	defer rows.Close()

	var articles []harvest.Article
	for rows.Next() {
		var a harvest.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Summary, &a.CleanContent); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

// TitlesLike returns up to limit titles containing the pattern,
// case-insensitively, shortest first so the LIMIT keeps the most direct
// completions. Prefix-versus-substring ranking is left to the caller.
func (s *ArticleStore) TitlesLike(ctx context.Context, pattern string, limit int) ([]string, error) {
	query := fmt.Sprintf(`
SELECT title
FROM %s
WHERE title ILIKE $1
ORDER BY LENGTH(title), title
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, "%"+pattern+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("select titles like: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titles: %w", err)
	}
	return titles, nil
}

// GetByID returns one article by store id, without the raw content.
func (s *ArticleStore) GetByID(ctx context.Context, id int64) (harvest.Article, error) {
	query := fmt.Sprintf(`
SELECT id, title, summary, url, word_count, created_at
FROM %s
WHERE id = $1`, s.table)

	var a harvest.Article
	err := s.pool.QueryRow(ctx, query, id).
		Scan(&a.ID, &a.Title, &a.Summary, &a.URL, &a.WordCount, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return harvest.Article{}, ErrNotFound
	}
	if err != nil {
		return harvest.Article{}, fmt.Errorf("select article %d: %w", id, err)
	}
	return a, nil
}

// Stats returns corpus-level word count statistics.
func (s *ArticleStore) Stats(ctx context.Context) (Stats, error) {
	query := fmt.Sprintf(`
SELECT COUNT(*),
	COALESCE(AVG(word_count), 0),
	COALESCE(MAX(word_count), 0),
	COALESCE(MIN(word_count), 0)
FROM %s`, s.table)

	var stats Stats
	err := s.pool.QueryRow(ctx, query).
		Scan(&stats.Total, &stats.AvgWords, &stats.MaxWords, &stats.MinWords)
	if err != nil {
		return Stats{}, fmt.Errorf("select stats: %w", err)
	}
	return stats, nil
}

// Recent returns the most recently stored articles.
func (s *ArticleStore) Recent(ctx context.Context, limit int) ([]harvest.Article, error) {
	query := fmt.Sprintf(`
SELECT id, title, summary, url, word_count, created_at
FROM %s
ORDER BY created_at DESC
LIMIT $1`, s.table)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent: %w", err)
	}
	defer rows.Close()

	var articles []harvest.Article
	for rows.Next() {
		var a harvest.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Summary, &a.URL, &a.WordCount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent: %w", err)
	}
	return articles, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
