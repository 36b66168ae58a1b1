// Package semanticscorer implements the Semantic Scorer capability wrapper
// (spec §4.4, §4.7): retry/backoff around a raw LLM completion call,
// fenced-JSON stripping, mustache-templated prompts, and the deterministic
// numeric-score derivation. The concrete LLM provider is injected as a
// Provider; the default is internal/infrastructure/llm's OpenAI client.
package semanticscorer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/cbroglie/mustache"

	"webscope/internal/core/domain/analysis"
	apperrors "webscope/pkg/errors"
)

// Provider is the minimal capability a concrete LLM client must offer: a
// single free-form text completion call. Retry, templating, and parsing
// all live in this package so any Provider implementation stays trivial.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const (
	maxAttempts  = 3
	baseBackoff  = 1 * time.Second
	capBackoff   = 10 * time.Second
)

// Scorer is the default analysis.SemanticScorer implementation.
type Scorer struct {
	provider Provider
}

// New wraps provider with the retry/templating/parsing contract.
func New(provider Provider) *Scorer {
	return &Scorer{provider: provider}
}

var _ analysis.SemanticScorer = (*Scorer)(nil)

// Score implements analysis.SemanticScorer.
func (s *Scorer) Score(ctx context.Context, url, pageText, title, description string) (*analysis.SemanticReport, error) {
	prompt, err := mustache.Render(singlePageTemplate, map[string]string{
		"url":         url,
		"title":       title,
		"description": description,
		"page_text":   pageText,
	})
	if err != nil {
		return nil, apperrors.NewScorerFailedError("failed to render semantic scorer prompt", err)
	}

	raw, err := s.completeWithRetry(ctx, prompt)
	if err != nil {
		return nil, apperrors.NewScorerFailedError("semantic scorer exhausted retries", err)
	}

	var parsed singlePageResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil, apperrors.NewScorerFailedError("semantic scorer returned unparsable output", err)
	}

	suggestions := make([]analysis.Suggestion, 0, len(parsed.Suggestions))
	for _, sg := range parsed.Suggestions {
		suggestions = append(suggestions, analysis.Suggestion{
			Category:    sg.Category,
			Priority:    analysis.Priority(sg.Priority),
			Title:       sg.Title,
			Description: sg.Description,
			Impact:      sg.Impact,
		})
	}
	if len(suggestions) > 7 {
		suggestions = suggestions[:7]
	}

	score := deriveScore(parsed.ClarityScore, parsed.WhatItDoes, parsed.ProductsServices, parsed.TargetAudience, parsed.UniqueValue, parsed.OverallImpression)

	return &analysis.SemanticReport{
		WhatItDoes:        parsed.WhatItDoes,
		ProductsServices:  parsed.ProductsServices,
		TargetAudience:    parsed.TargetAudience,
		UniqueValue:       parsed.UniqueValue,
		ClarityScore:      parsed.ClarityScore,
		OverallImpression: parsed.OverallImpression,
		Suggestions:       suggestions,
		Score:             score,
	}, nil
}

// Compare implements analysis.SemanticScorer's batch-mode narrative call
// (spec §4.7). On a parse/exhaustion failure, callers are expected to
// degrade to an empty NarrativeComparison rather than fail the batch.
func (s *Scorer) Compare(ctx context.Context, competitors []analysis.CompetitorSummary) (*analysis.NarrativeComparison, error) {
	view := make([]map[string]interface{}, 0, len(competitors))
	for _, c := range competitors {
		view = append(view, map[string]interface{}{
			"url":            c.URL,
			"label":          c.Label,
			"description":    c.Description,
			"rule_score":     fmt.Sprintf("%.2f", c.RuleScore),
			"semantic_score": fmt.Sprintf("%.2f", c.SemanticScore),
			"top_issues":     c.TopIssues,
			"top_strengths":  c.TopStrengths,
		})
	}

	prompt, err := mustache.Render(batchCompareTemplate, map[string]interface{}{"competitors": view})
	if err != nil {
		return nil, apperrors.NewScorerFailedError("failed to render comparison prompt", err)
	}

	raw, err := s.completeWithRetry(ctx, prompt)
	if err != nil {
		return nil, apperrors.NewScorerFailedError("narrative comparison exhausted retries", err)
	}

	var parsed batchCompareResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil, apperrors.NewScorerFailedError("narrative comparison returned unparsable output", err)
	}

	result := &analysis.NarrativeComparison{
		Insights:      parsed.Insights,
		Opportunities: parsed.Opportunities,
		Threats:       parsed.Threats,
	}
	if parsed.OverallWinner != nil {
		result.OverallWinner = &analysis.OverallWinner{
			URL:    parsed.OverallWinner.URL,
			Label:  parsed.OverallWinner.Label,
			Reason: parsed.OverallWinner.Reason,
		}
	}
	return result, nil
}

func (s *Scorer) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Min(float64(capBackoff), float64(baseBackoff)*math.Pow(2, float64(attempt-1))))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		out, err := s.provider.Complete(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return "", lastErr
}

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripFences removes ``` or ```json fenced code-block wrappers a
// free-form LLM response may wrap its JSON payload in.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

type singlePageResponse struct {
	WhatItDoes        string                 `json:"what_it_does"`
	ProductsServices  string                 `json:"products_services"`
	TargetAudience    string                 `json:"target_audience"`
	UniqueValue       string                 `json:"unique_value"`
	ClarityScore      int                    `json:"clarity_score"`
	OverallImpression string                 `json:"overall_impression"`
	Suggestions       []suggestionResponse   `json:"suggestions"`
}

type suggestionResponse struct {
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

type batchCompareResponse struct {
	Insights      string             `json:"insights"`
	Opportunities []string           `json:"opportunities"`
	Threats       []string           `json:"threats"`
	OverallWinner *overallWinnerJSON `json:"overall_winner"`
}

type overallWinnerJSON struct {
	URL    string `json:"url"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}
