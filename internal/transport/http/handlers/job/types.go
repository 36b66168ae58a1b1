package job

import (
	"time"

	"webscope/internal/core/domain/analysis"
)

// CreateRequest is the body of POST /v1/jobs.
type CreateRequest struct {
	URL string `json:"url" binding:"required"`
}

// CreateResponse is returned on successful job submission.
type CreateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ErrorDetailsResponse mirrors analysis.ErrorDetails for the wire.
type ErrorDetailsResponse struct {
	Kind              string `json:"kind"`
	Step              string `json:"step"`
	ProgressAtFailure int    `json:"progress_at_failure"`
}

// StatusResponse is returned by GET /v1/jobs/:id.
type StatusResponse struct {
	ID           string                `json:"id"`
	URL          string                `json:"url"`
	Status       string                `json:"status"`
	Progress     int                   `json:"progress"`
	CurrentStep  string                `json:"current_step,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	ErrorMessage *string               `json:"error_message,omitempty"`
	ErrorDetails *ErrorDetailsResponse `json:"error_details,omitempty"`
	BatchID      *string               `json:"batch_id,omitempty"`
}

// SuggestionResponse mirrors analysis.Suggestion for the wire.
type SuggestionResponse struct {
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

// ArtifactResponse is returned by GET /v1/jobs/:id/artifact.
type ArtifactResponse struct {
	JobID           string                `json:"job_id"`
	RuleScore       float64               `json:"rule_score"`
	SemanticScore   float64               `json:"semantic_score"`
	Suggestions     []SuggestionResponse  `json:"suggestions"`
	ScreenshotRef   string                `json:"screenshot_ref,omitempty"`
	DurationSeconds float64               `json:"duration_seconds"`
}

func toStatusResponse(j *analysis.Job) *StatusResponse {
	resp := &StatusResponse{
		ID:           j.ID.String(),
		URL:          j.URL,
		Status:       string(j.Status),
		Progress:     j.Progress,
		CurrentStep:  j.CurrentStep,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		ErrorMessage: j.ErrorMessage,
	}
	if j.ErrorDetails != nil {
		resp.ErrorDetails = &ErrorDetailsResponse{
			Kind:              j.ErrorDetails.Kind,
			Step:              j.ErrorDetails.Step,
			ProgressAtFailure: j.ErrorDetails.ProgressAtFailure,
		}
	}
	if j.BatchID != nil {
		batchID := j.BatchID.String()
		resp.BatchID = &batchID
	}
	return resp
}

func toArtifactResponse(a *analysis.Artifact) *ArtifactResponse {
	suggestions := make([]SuggestionResponse, len(a.Suggestions))
	for i, s := range a.Suggestions {
		suggestions[i] = SuggestionResponse{
			Category:    s.Category,
			Priority:    string(s.Priority),
			Title:       s.Title,
			Description: s.Description,
			Impact:      s.Impact,
		}
	}
	return &ArtifactResponse{
		JobID:           a.JobID.String(),
		RuleScore:       a.RuleScore,
		SemanticScore:   a.SemanticScore,
		Suggestions:     suggestions,
		ScreenshotRef:   a.ScreenshotRef,
		DurationSeconds: a.DurationSeconds,
	}
}
