package harvest

import "strings"

// skipMarkers flags disambiguation, list and meta pages that carry no
// useful prose. Matched case-insensitively against title and summary.
var skipMarkers = []string{
	"disambiguation",
	"may refer to",
	"list of",
	"index of",
	"category:",
	"template:",
	"file:",
	"portal:",
}

// QualityFilter is a pure predicate deciding whether a fetched page is
// worth keeping. It performs no I/O.
type QualityFilter struct {
	minContentLength int
	minSummaryLength int
}

// NewQualityFilter builds a filter with the given minimum lengths.
func NewQualityFilter(minContentLength, minSummaryLength int) *QualityFilter {
	return &QualityFilter{
		minContentLength: minContentLength,
		minSummaryLength: minSummaryLength,
	}
}

// Accepts reports whether the page passes all quality criteria.
func (f *QualityFilter) Accepts(title, content, summary string) bool {
	titleLower := strings.ToLower(title)
	summaryLower := strings.ToLower(summary)
	for _, marker := range skipMarkers {
		if strings.Contains(titleLower, marker) || strings.Contains(summaryLower, marker) {
			return false
		}
	}
	if len(content) < f.minContentLength {
		return false
	}
	if len(summary) < f.minSummaryLength {
		return false
	}
	return true
}
