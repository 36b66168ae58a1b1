// Package llm holds concrete LLM provider implementations for the
// Semantic Scorer's semanticscorer.Provider seam.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider is the default semanticscorer.Provider, issuing a single
// chat-completion call per invocation. Retry/backoff lives one layer up
// in semanticscorer.Scorer; this type makes exactly one attempt per call.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIProvider builds a provider bound to the given API key and model.
func NewOpenAIProvider(apiKey, model string, logger *slog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

// Complete issues a single chat-completion request and returns the raw
// text of the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		p.logger.Warn("openai completion failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// isRetryableError classifies the errors a caller one layer up should
// retry: rate limiting, request timeouts, and 5xx server errors.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusRequestTimeout:
			return true
		}
		return apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
