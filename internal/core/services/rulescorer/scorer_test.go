package rulescorer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"webscope/internal/core/domain/analysis"
)

func baseSnapshot() *analysis.PageSnapshot {
	return &analysis.PageSnapshot{
		URL: "https://example.com",
		Meta: analysis.PageMeta{
			Title:           strings.Repeat("a", 40),
			Description:     strings.Repeat("b", 140),
			OpenGraphTags:   map[string]string{"og:title": "x", "og:description": "y", "og:image": "z", "og:type": "website"},
			CanonicalURL:    "https://example.com/",
			ViewportPresent: true,
		},
		Headings: map[int][]string{
			1: {"Main title"},
			2: {"Section one", "Section two"},
		},
		StructuredData:  []analysis.StructuredDataEntry{{Type: "Organization"}},
		LoadTimeSeconds: 1.5,
	}
}

func TestScoreHappyPath(t *testing.T) {
	report := Score(baseSnapshot())

	assert.Equal(t, 100.0, report.Categories.Meta)
	assert.Equal(t, 100.0, report.Categories.Headings)
	assert.Equal(t, 100.0, report.Categories.Performance)
	assert.Equal(t, 100.0, report.Categories.Mobile)
	assert.Equal(t, 100.0, report.Categories.Security)
	assert.Equal(t, 100.0, report.Categories.StructuredData)
	assert.Equal(t, 100.0, report.Score)
	assert.Empty(t, report.Issues)
}

func TestScoreCanonicalScenario(t *testing.T) {
	// One h1, one h2, viewport present, https, one recognized structured
	// data entry, load time 1.5s, title 29 chars, description 136 chars.
	snap := &analysis.PageSnapshot{
		URL: "https://example.com",
		Meta: analysis.PageMeta{
			Title:           "Example Domain Reference Page", // 29 chars
			Description:     strings.Repeat("d", 136),
			ViewportPresent: true,
		},
		Headings: map[int][]string{
			1: {"Example Domain"},
			2: {"Details"},
		},
		StructuredData:  []analysis.StructuredDataEntry{{Type: "Organization"}},
		LoadTimeSeconds: 1.5,
	}

	report := Score(snap)

	// Title at 29 chars is <30 -> +20; description at 136 chars is in
	// [120,160] -> +40; no OG tags -> +0; no canonical -> +0.
	assert.Equal(t, 60.0, report.Categories.Meta)
	assert.Equal(t, 100.0, report.Categories.Headings)
	assert.Equal(t, 100.0, report.Categories.Performance)
	assert.Equal(t, 100.0, report.Categories.Mobile)
	assert.Equal(t, 100.0, report.Categories.Security)
	assert.Equal(t, 100.0, report.Categories.StructuredData)
	assert.Equal(t, 90.0, report.Score)
}

func TestTitleLengthBoundaries(t *testing.T) {
	cases := []struct {
		length int
		want   float64
	}{
		{0, 0}, {29, 20}, {30, 40}, {60, 40}, {61, 30}, {120, 30},
	}
	for _, c := range cases {
		meta := analysis.PageMeta{Title: strings.Repeat("a", c.length)}
		score, _, _ := scoreMeta(meta)
		assert.Equal(t, c.want, score, "title length %d", c.length)
	}
}

func TestDescriptionLengthBoundaries(t *testing.T) {
	cases := []struct {
		length int
		want   float64
	}{
		{0, 0}, {119, 20}, {120, 40}, {160, 40}, {161, 30},
	}
	for _, c := range cases {
		meta := analysis.PageMeta{Title: strings.Repeat("a", 40), Description: strings.Repeat("b", c.length)}
		score, _, _ := scoreMeta(meta)
		assert.Equal(t, 40.0+c.want, score, "description length %d", c.length)
	}
}

func TestLoadTimeBoundaries(t *testing.T) {
	cases := []struct {
		seconds float64
		want    float64
	}{
		{1.99, 100}, {2.00, 80}, {2.99, 80}, {3.00, 50}, {4.99, 50}, {5.00, 20},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, scorePerformance(c.seconds), "load time %v", c.seconds)
	}
}

func TestHeadingsMissingH1IsCritical(t *testing.T) {
	score, issues, _ := scoreHeadings(map[int][]string{})
	assert.Equal(t, 50.0, score)
	assert.Contains(t, issues, "missing h1 heading")
}

func TestHeadingsMultipleH1(t *testing.T) {
	score, issues, _ := scoreHeadings(map[int][]string{1: {"a", "b"}, 2: {"c"}})
	assert.Equal(t, 80.0, score)
	assert.Contains(t, issues, "multiple h1 headings")
}

func TestHeadingsHierarchyGap(t *testing.T) {
	score, issues, _ := scoreHeadings(map[int][]string{1: {"a"}, 2: {"b"}, 4: {"c"}})
	assert.Equal(t, 80.0, score)
	assert.Contains(t, issues, "heading hierarchy gap at h3")
}

func TestStructuredDataUnrecognizedType(t *testing.T) {
	score, suggestions := scoreStructuredData([]analysis.StructuredDataEntry{{Type: "CustomThing"}})
	assert.Equal(t, 50.0, score)
	assert.Len(t, suggestions, 1)
}

func TestSuggestionsSortedByPriority(t *testing.T) {
	snap := &analysis.PageSnapshot{
		URL:      "http://example.com",
		Headings: map[int][]string{},
	}
	report := Score(snap)
	for i := 1; i < len(report.Suggestions); i++ {
		prev, cur := report.Suggestions[i-1].Priority, report.Suggestions[i].Priority
		assert.False(t, cur.Less(prev), "suggestions must be sorted by non-decreasing severity")
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	snap := baseSnapshot()
	first := Score(snap)
	second := Score(snap)
	assert.Equal(t, first, second)
}
