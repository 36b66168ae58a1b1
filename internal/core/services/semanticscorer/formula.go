package semanticscorer

import "strings"

var negativeKeywords = []string{"unclear", "confusing", "vague", "difficult"}
var softNegativeKeywords = []string{"missing", "lacking", "insufficient"}

// deriveScore implements the deterministic numeric score formula of
// spec §4.4, given the narrative report's raw fields.
func deriveScore(clarityScore int, whatItDoes, productsServices, targetAudience, uniqueValue, overallImpression string) float64 {
	base := (float64(clarityScore) / 10.0) * 70.0

	completeness := 0.0
	for _, field := range []string{whatItDoes, productsServices, targetAudience, uniqueValue} {
		if len(strings.TrimSpace(field)) > 20 {
			completeness += 7.5
		}
	}
	if completeness > 30 {
		completeness = 30
	}

	lowered := strings.ToLower(overallImpression)
	penalty := 0.0
	if containsAny(lowered, negativeKeywords) {
		penalty = 10
	} else if containsAny(lowered, softNegativeKeywords) {
		penalty = 5
	}

	score := base + completeness - penalty
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return round2(score)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
