package semanticscorer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubProvider) Complete(ctx context.Context, prompt string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.responses[i], nil
}

func TestScoreHappyPath(t *testing.T) {
	provider := &stubProvider{responses: []string{`{
		"what_it_does": "Sells artisan coffee beans online",
		"products_services": "Subscription coffee delivery and single bags",
		"target_audience": "Home coffee enthusiasts aged 25-45",
		"unique_value": "Small-batch roasting within 48 hours of shipping",
		"clarity_score": 8,
		"overall_impression": "Clear and well organized",
		"suggestions": [{"category": "messaging", "priority": "medium", "title": "Add pricing", "description": "No pricing visible", "impact": "Reduces conversion"}]
	}`}}

	s := New(provider)
	report, err := s.Score(context.Background(), "https://example.com", "page text", "Example Coffee", "Buy great coffee")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, 8, report.ClarityScore)
	assert.Equal(t, "Sells artisan coffee beans online", report.WhatItDoes)
	assert.Len(t, report.Suggestions, 1)
	assert.True(t, report.Score > 0)
}

func TestScoreStripsFencedJSON(t *testing.T) {
	provider := &stubProvider{responses: []string{"```json\n" + `{
		"what_it_does": "x",
		"products_services": "y",
		"target_audience": "z",
		"unique_value": "w",
		"clarity_score": 5,
		"overall_impression": "fine",
		"suggestions": []
	}` + "\n```"}}

	s := New(provider)
	report, err := s.Score(context.Background(), "https://example.com", "text", "t", "d")
	require.NoError(t, err)
	assert.Equal(t, 5, report.ClarityScore)
}

func TestScoreRetriesOnTransientError(t *testing.T) {
	provider := &stubProvider{
		errs: []error{errors.New("rate limited"), nil},
		responses: []string{"", `{
			"what_it_does": "x", "products_services": "y", "target_audience": "z",
			"unique_value": "w", "clarity_score": 3, "overall_impression": "ok", "suggestions": []
		}`},
	}

	s := New(provider)
	_, err := s.Score(context.Background(), "https://example.com", "text", "t", "d")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestScoreExhaustsRetries(t *testing.T) {
	provider := &stubProvider{errs: []error{errors.New("e1"), errors.New("e2"), errors.New("e3")}, responses: []string{"", "", ""}}

	s := New(provider)
	_, err := s.Score(context.Background(), "https://example.com", "text", "t", "d")
	assert.Error(t, err)
	assert.Equal(t, maxAttempts, provider.calls)
}

func TestCompareDegradesOnUnparsableOutput(t *testing.T) {
	provider := &stubProvider{responses: []string{"not json at all"}}
	s := New(provider)
	_, err := s.Compare(context.Background(), nil)
	assert.Error(t, err)
}

func TestCompareHappyPath(t *testing.T) {
	provider := &stubProvider{responses: []string{`{
		"insights": "Site A leads on clarity",
		"opportunities": ["improve mobile"],
		"threats": ["competitor B pricing"],
		"overall_winner": {"url": "https://a.example", "label": "Site A", "reason": "clearer messaging"}
	}`}}

	s := New(provider)
	result, err := s.Compare(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, result.OverallWinner)
	assert.Equal(t, "Site A", result.OverallWinner.Label)
	assert.Len(t, result.Opportunities, 1)
}

func TestDeriveScoreRewardsClarityAndCompleteness(t *testing.T) {
	long := "this field has well over twenty characters in it"
	score := deriveScore(10, long, long, long, long, "excellent and clear")
	assert.Equal(t, 100.0, score)
}

func TestDeriveScorePenalizesNegativeKeywords(t *testing.T) {
	long := "this field has well over twenty characters in it"
	withPenalty := deriveScore(10, long, long, long, long, "somewhat confusing overall")
	without := deriveScore(10, long, long, long, long, "clear overall")
	assert.Equal(t, without-10, withPenalty)
}

func TestDeriveScoreSoftPenalty(t *testing.T) {
	long := "this field has well over twenty characters in it"
	withSoft := deriveScore(10, long, long, long, long, "missing some detail")
	without := deriveScore(10, long, long, long, long, "clear overall")
	assert.Equal(t, without-5, withSoft)
}

func TestDeriveScoreFloorsAtZero(t *testing.T) {
	score := deriveScore(0, "", "", "", "", "very unclear and confusing")
	assert.Equal(t, 0.0, score)
}

func TestDeriveScoreShortFieldsDontCountAsComplete(t *testing.T) {
	shortScore := deriveScore(10, "short", "short", "short", "short", "clear")
	longScore := deriveScore(10, "this field has well over twenty characters", "this field has well over twenty characters", "this field has well over twenty characters", "this field has well over twenty characters", "clear")
	assert.True(t, longScore > shortScore)
}
