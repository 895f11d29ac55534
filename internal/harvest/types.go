// Package harvest implements the concurrent crawl pipeline: frontier
// management, fetching, quality filtering and batched persistence.
package harvest

import "time"

// EntryKind discriminates what a frontier entry points at.
type EntryKind string

// Frontier entry kinds.
const (
	KindArticle  EntryKind = "article"
	KindCategory EntryKind = "category"
)

// FrontierEntry is a single unit of pending crawl work.
type FrontierEntry struct {
	Kind  EntryKind
	Title string
}

// Article is the record persisted for each accepted page.
type Article struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	RawContent   string    `json:"raw_content,omitempty"`
	CleanContent string    `json:"clean_content,omitempty"`
	URL          string    `json:"url"`
	WordCount    int       `json:"word_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// PageSummary is the metadata returned by the source summary endpoint.
type PageSummary struct {
	Title   string
	Extract string
	URL     string
}

// PageContent is the parsed markup plus main-namespace outbound links.
type PageContent struct {
	HTML  string
	Links []string
}

// CategoryMember is one entry of a category listing.
type CategoryMember struct {
	Title     string
	Namespace int
}

// Namespaces used when expanding category members.
const (
	NamespaceArticle  = 0
	NamespaceCategory = 14
)

// CategoryPage is one page of category members with an optional
// continuation token for the next page.
type CategoryPage struct {
	Members  []CategoryMember
	Continue string
}

// Progress is a point-in-time snapshot of crawl throughput.
type Progress struct {
	Visited    int
	Saved      int64
	QueueDepth int
	Elapsed    time.Duration
	PerSecond  float64
}
