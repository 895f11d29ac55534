package harvest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityFilterContentBoundary(t *testing.T) {
	t.Parallel()

	filter := NewQualityFilter(100, 100)
	summary := strings.Repeat("s", 100)

	assert.False(t, filter.Accepts("Go", strings.Repeat("c", 99), summary))
	assert.True(t, filter.Accepts("Go", strings.Repeat("c", 101), summary))
}

func TestQualityFilterRejectsMarkers(t *testing.T) {
	t.Parallel()

	filter := NewQualityFilter(10, 10)
	content := strings.Repeat("c", 500)
	summary := strings.Repeat("s", 200)

	cases := []struct {
		name    string
		title   string
		summary string
	}{
		{"disambiguation title", "Mercury (disambiguation)", summary},
		{"may refer to summary", "Mercury", "Mercury may refer to several things"},
		{"list page", "List of rivers", summary},
		{"category namespace", "Category: Rivers", summary},
		{"template namespace", "Template: Infobox", summary},
		{"case insensitive", "LIST OF things", summary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, filter.Accepts(tc.title, content, tc.summary))
		})
	}

	assert.True(t, filter.Accepts("Mercury (planet)", content, summary))
}

func TestQualityFilterRejectsShortSummary(t *testing.T) {
	t.Parallel()

	filter := NewQualityFilter(100, 100)
	assert.False(t, filter.Accepts("Go", strings.Repeat("c", 500), "too short"))
}
