// Package mediawiki implements the harvest.Source interface against the
// MediaWiki REST and action APIs.
package mediawiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/wikidex/wikidex/internal/harvest"
)

// categoryPageSize is the cmlimit sent per listing request; the
// scheduler applies its own cap on top.
const categoryPageSize = 500

// Config controls the upstream API client.
type Config struct {
	RestBaseURL   string
	ActionBaseURL string
	UserAgent     string
	Timeout       time.Duration
}

// Client talks to the encyclopedia API over HTTP.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

type summaryPayload struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Summary fetches the page summary metadata for title.
func (c *Client) Summary(ctx context.Context, title string) (harvest.PageSummary, error) {
	endpoint := fmt.Sprintf("%s/page/summary/%s", c.cfg.RestBaseURL, url.PathEscape(title))
	var payload summaryPayload
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return harvest.PageSummary{}, fmt.Errorf("summary %q: %w", title, err)
	}
	return harvest.PageSummary{
		Title:   payload.Title,
		Extract: payload.Extract,
		URL:     payload.ContentURLs.Desktop.Page,
	}, nil
}

type parsePayload struct {
	Parse struct {
		Text struct {
			Content string `json:"*"`
		} `json:"text"`
		Links []struct {
			Title     string `json:"*"`
			Namespace int    `json:"ns"`
		} `json:"links"`
	} `json:"parse"`
}

// ContentAndLinks fetches the parsed markup and the main-namespace
// outbound links for title.
func (c *Client) ContentAndLinks(ctx context.Context, title string) (harvest.PageContent, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("format", "json")
	endpoint := c.cfg.ActionBaseURL + "?" + params.Encode()

	var payload parsePayload
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return harvest.PageContent{}, fmt.Errorf("parse %q: %w", title, err)
	}

	var links []string
	for _, link := range payload.Parse.Links {
		if link.Namespace == harvest.NamespaceArticle && link.Title != "" {
			links = append(links, link.Title)
		}
	}
	return harvest.PageContent{
		HTML:  payload.Parse.Text.Content,
		Links: links,
	}, nil
}

type categoryPayload struct {
	Query struct {
		CategoryMembers []struct {
			Title     string `json:"title"`
			Namespace int    `json:"ns"`
		} `json:"categorymembers"`
	} `json:"query"`
	Continue struct {
		CmContinue string `json:"cmcontinue"`
	} `json:"continue"`
}

// CategoryMembers fetches one page of category members, returning a
// continuation token when more pages remain.
func (c *Client) CategoryMembers(ctx context.Context, category, cont string) (harvest.CategoryPage, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "categorymembers")
	params.Set("cmtitle", category)
	params.Set("cmlimit", fmt.Sprintf("%d", categoryPageSize))
	params.Set("format", "json")
	if cont != "" {
		params.Set("cmcontinue", cont)
	}
	endpoint := c.cfg.ActionBaseURL + "?" + params.Encode()

	var payload categoryPayload
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return harvest.CategoryPage{}, fmt.Errorf("category members %q: %w", category, err)
	}

	page := harvest.CategoryPage{Continue: payload.Continue.CmContinue}
	for _, m := range payload.Query.CategoryMembers {
		page.Members = append(page.Members, harvest.CategoryMember{
			Title:     m.Title,
			Namespace: m.Namespace,
		})
	}
	return page, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
