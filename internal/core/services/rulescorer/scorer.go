// Package rulescorer implements the deterministic Rule Scorer: a pure
// function from a PageSnapshot to a ScoreReport. No I/O, no randomness,
// same input always yields bit-identical output.
package rulescorer

import (
	"fmt"
	"sort"
	"strings"

	"webscope/internal/core/domain/analysis"
)

var categoryWeights = map[string]float64{
	"meta":            0.25,
	"headings":        0.15,
	"performance":     0.20,
	"mobile":          0.15,
	"security":        0.10,
	"structured_data": 0.15,
}

var structuredDataTypes = map[string]bool{
	"Organization":    true,
	"WebSite":         true,
	"Article":         true,
	"Product":         true,
	"LocalBusiness":   true,
	"FAQPage":         true,
	"BreadcrumbList":  true,
}

// Score computes the full ScoreReport for a snapshot.
func Score(snap *analysis.PageSnapshot) *analysis.ScoreReport {
	var issues []string
	var suggestions []analysis.Suggestion

	meta, metaIssues, metaSuggestions := scoreMeta(snap.Meta)
	headings, headingIssues, headingSuggestions := scoreHeadings(snap.Headings)
	performance := scorePerformance(snap.LoadTimeSeconds)
	mobile, mobileSuggestions := scoreMobile(snap.Meta.ViewportPresent)
	security, securitySuggestions := scoreSecurity(snap.URL)
	structured, structuredSuggestions := scoreStructuredData(snap.StructuredData)

	issues = append(issues, metaIssues...)
	issues = append(issues, headingIssues...)
	suggestions = append(suggestions, metaSuggestions...)
	suggestions = append(suggestions, headingSuggestions...)
	suggestions = append(suggestions, mobileSuggestions...)
	suggestions = append(suggestions, securitySuggestions...)
	suggestions = append(suggestions, structuredSuggestions...)

	categories := analysis.CategoryScores{
		Meta:           meta,
		Headings:       headings,
		Performance:    performance,
		Mobile:         mobile,
		Security:       security,
		StructuredData: structured,
	}

	weighted := meta*categoryWeights["meta"] +
		headings*categoryWeights["headings"] +
		performance*categoryWeights["performance"] +
		mobile*categoryWeights["mobile"] +
		security*categoryWeights["security"] +
		structured*categoryWeights["structured_data"]

	sortSuggestions(suggestions)

	return &analysis.ScoreReport{
		Score:       round2(weighted),
		Categories:  categories,
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func scoreMeta(meta analysis.PageMeta) (float64, []string, []analysis.Suggestion) {
	var score float64
	var issues []string
	var suggestions []analysis.Suggestion

	titleLen := len(meta.Title)
	switch {
	case titleLen == 0:
		issues = append(issues, "missing page title")
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "meta", Priority: analysis.PriorityCritical,
			Title:       "Add a page title",
			Description: "The page has no <title> element.",
			Impact:      "Search engines and social previews have nothing to display.",
		})
	case titleLen < 30:
		score += 20
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "meta", Priority: analysis.PriorityMedium,
			Title:       "Lengthen the page title",
			Description: "Title is under 30 characters.",
			Impact:      "Short titles under-use available search-result space.",
		})
	case titleLen > 60:
		score += 30
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "meta", Priority: analysis.PriorityMedium,
			Title:       "Shorten the page title",
			Description: "Title exceeds 60 characters and may be truncated in search results.",
			Impact:      "Truncated titles reduce click-through clarity.",
		})
	default:
		score += 40
	}

	descLen := len(meta.Description)
	switch {
	case descLen == 0:
		issues = append(issues, "missing meta description")
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "meta", Priority: analysis.PriorityHigh,
			Title:       "Add a meta description",
			Description: "The page has no meta description.",
			Impact:      "Search engines will synthesize a snippet instead.",
		})
	case descLen < 120:
		score += 20
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "meta", Priority: analysis.PriorityMedium,
			Title:       "Lengthen the meta description",
			Description: "Description is under 120 characters.",
			Impact:      "Short descriptions under-use available snippet space.",
		})
	case descLen > 160:
		score += 30
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "meta", Priority: analysis.PriorityMedium,
			Title:       "Shorten the meta description",
			Description: "Description exceeds 160 characters and may be truncated.",
			Impact:      "Truncated descriptions reduce snippet clarity.",
		})
	default:
		score += 40
	}

	switch ogCount := len(meta.OpenGraphTags); {
	case ogCount >= 4:
		score += 10
	case ogCount >= 1:
		score += 5
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "meta", Priority: analysis.PriorityLow,
			Title:       "Add more Open Graph tags",
			Description: "Fewer than four og:* tags are present.",
			Impact:      "Social previews may be incomplete.",
		})
	default:
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "meta", Priority: analysis.PriorityLow,
			Title:       "Add Open Graph tags",
			Description: "No og:* tags found.",
			Impact:      "Social shares fall back to generic previews.",
		})
	}

	if meta.CanonicalURL != "" {
		score += 10
	} else {
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "meta", Priority: analysis.PriorityLow,
			Title:       "Add a canonical link",
			Description: "No canonical URL is declared.",
			Impact:      "Duplicate-content signals may be diluted across URL variants.",
		})
	}

	if score > 100 {
		score = 100
	}
	return score, issues, suggestions
}

func scoreHeadings(headings map[int][]string) (float64, []string, []analysis.Suggestion) {
	score := 100.0
	var issues []string
	var suggestions []analysis.Suggestion

	h1Count := len(headings[1])
	switch {
	case h1Count == 0:
		score -= 50
		issues = append(issues, "missing h1 heading")
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "headings", Priority: analysis.PriorityCritical,
			Title:       "Add an h1 heading",
			Description: "The page has no h1 element.",
			Impact:      "Pages without an h1 lack a clear primary topic signal.",
		})
	case h1Count > 1:
		score -= 20
		issues = append(issues, "multiple h1 headings")
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "headings", Priority: analysis.PriorityHigh,
			Title:       "Use a single h1 heading",
			Description: fmt.Sprintf("Found %d h1 elements.", h1Count),
			Impact:      "Multiple h1s dilute the page's primary topic signal.",
		})
	}

	if h1Count > 0 && len(headings[2]) == 0 {
		score -= 30
		issues = append(issues, "h1 present but no h2 headings")
		suggestions = append(suggestions, analysis.Suggestion{
			Category: "headings", Priority: analysis.PriorityMedium,
			Title:       "Add h2 section headings",
			Description: "No h2 headings follow the h1.",
			Impact:      "Missing subheadings make content harder to scan.",
		})
	}

	for level := 1; level <= 5; level++ {
		if len(headings[level+1]) > 0 && len(headings[level]) == 0 {
			score -= 20
			issues = append(issues, fmt.Sprintf("heading hierarchy gap at h%d", level))
			suggestions = append(suggestions, analysis.Suggestion{
				Category: "headings", Priority: analysis.PriorityLow,
				Title:       fmt.Sprintf("Fill the h%d gap", level),
				Description: fmt.Sprintf("h%d is used without any h%d.", level+1, level),
				Impact:      "Skipped heading levels break the document outline.",
			})
			break
		}
	}

	if score < 0 {
		score = 0
	}
	return score, issues, suggestions
}

func scorePerformance(loadTimeSeconds float64) float64 {
	switch {
	case loadTimeSeconds < 2.0:
		return 100
	case loadTimeSeconds < 3.0:
		return 80
	case loadTimeSeconds < 5.0:
		return 50
	default:
		return 20
	}
}

func scoreMobile(viewportPresent bool) (float64, []analysis.Suggestion) {
	if viewportPresent {
		return 100, nil
	}
	return 0, []analysis.Suggestion{{
		Category: "mobile", Priority: analysis.PriorityHigh,
		Title:       "Add a viewport meta tag",
		Description: "No viewport meta tag was found.",
		Impact:      "The page may not render correctly on mobile devices.",
	}}
}

func scoreSecurity(url string) (float64, []analysis.Suggestion) {
	if strings.HasPrefix(strings.ToLower(url), "https://") {
		return 100, nil
	}
	return 0, []analysis.Suggestion{{
		Category: "security", Priority: analysis.PriorityCritical,
		Title:       "Serve the page over HTTPS",
		Description: "The page is served over an insecure scheme.",
		Impact:      "Browsers flag non-HTTPS pages as not secure.",
	}}
}

func scoreStructuredData(entries []analysis.StructuredDataEntry) (float64, []analysis.Suggestion) {
	if len(entries) == 0 {
		return 0, []analysis.Suggestion{{
			Category: "structured_data", Priority: analysis.PriorityMedium,
			Title:       "Add structured data",
			Description: "No structured data entries were found.",
			Impact:      "Rich results in search are unavailable without structured data.",
		}}
	}
	for _, e := range entries {
		if structuredDataTypes[e.Type] {
			return 100, nil
		}
	}
	return 50, []analysis.Suggestion{{
		Category: "structured_data", Priority: analysis.PriorityLow,
		Title:       "Use a recognized structured data type",
		Description: "Structured data is present but uses an uncommon @type.",
		Impact:      "Search engines may not surface rich results for this type.",
	}}
}

func sortSuggestions(suggestions []analysis.Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Priority.Less(suggestions[j].Priority)
	})
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
