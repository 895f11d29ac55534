// Package markup converts encyclopedia HTML into plain text suitable
// for storage and indexing.
package markup

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	refPattern     = regexp.MustCompile(`\[[^\]]*\]`)
	controlPattern = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
	spacePattern   = regexp.MustCompile(`\s+`)
)

// Stripper extracts readable text from raw article markup. Scripts,
// styles, tables and navigation/infobox chrome carry no prose and are
// dropped before text extraction.
type Stripper struct{}

// New creates a Stripper.
func New() *Stripper {
	return &Stripper{}
}

// Strip returns the plain text of the markup. Malformed or empty input
// yields an empty string rather than an error; the caller's quality
// filter rejects such pages anyway.
func (*Stripper) Strip(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, table, div.navbox, div.infobox").Remove()

	text := doc.Text()
	text = refPattern.ReplaceAllString(text, "")
	text = controlPattern.ReplaceAllString(text, "")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
