package batch

import (
	"time"

	"webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/batch"
)

// CreateRequest is the body of POST /v1/batches.
type CreateRequest struct {
	URLs   []string `json:"urls" binding:"required"`
	Labels []string `json:"labels,omitempty"`
	Name   string   `json:"name,omitempty"`
}

// CreateResponse is returned on successful batch submission.
type CreateResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	JobIDs  []string `json:"job_ids"`
}

// MemberResponse summarizes one batch member for StatusResponse.
type MemberResponse struct {
	JobID      string `json:"job_id"`
	Label      string `json:"label"`
	IsPrimary  bool   `json:"is_primary"`
	OrderIndex int    `json:"order_index"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
}

// StatusResponse is returned by GET /v1/batches/:id.
type StatusResponse struct {
	ID             string           `json:"id"`
	Name           string           `json:"name,omitempty"`
	Status         string           `json:"status"`
	Progress       int              `json:"progress"`
	CompletedCount int              `json:"completed_count"`
	FailedCount    int              `json:"failed_count"`
	Total          int              `json:"total"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	ErrorMessage   *string          `json:"error_message,omitempty"`
	Members        []MemberResponse `json:"members"`
}

// RankedEntryResponse mirrors batch.RankedEntry for the wire.
type RankedEntryResponse struct {
	URL              string  `json:"url"`
	Label            string  `json:"label"`
	Score            float64 `json:"score"`
	Rank             int     `json:"rank"`
	DeltaFromLeader  float64 `json:"delta_from_leader"`
	DeltaFromAverage float64 `json:"delta_from_average"`
}

// WinnerResponse mirrors batch.Winner for the wire.
type WinnerResponse struct {
	URL   string  `json:"url"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// OverallWinnerResponse mirrors batch.OverallWinner for the wire.
type OverallWinnerResponse struct {
	URL    string `json:"url"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// ComparisonResponse is returned by GET /v1/batches/:id/comparison.
type ComparisonResponse struct {
	BatchID         string                `json:"batch_id"`
	RuleRanking     []RankedEntryResponse `json:"rule_ranking"`
	SemanticRanking []RankedEntryResponse `json:"semantic_ranking"`
	RuleLeader      *WinnerResponse       `json:"rule_leader,omitempty"`
	SemanticLeader  *WinnerResponse       `json:"semantic_leader,omitempty"`
	RuleAverage     float64               `json:"rule_average"`
	SemanticAverage float64               `json:"semantic_average"`
	Insights        string                `json:"insights"`
	Opportunities   []string              `json:"opportunities"`
	Threats         []string              `json:"threats"`
	OverallWinner   *OverallWinnerResponse `json:"overall_winner,omitempty"`
	DurationSeconds float64               `json:"duration_seconds"`
}

// MemberArtifactResponse pairs a completed member's job id with its
// scored artifact, for the bundled results view.
type MemberArtifactResponse struct {
	JobID         string  `json:"job_id"`
	URL           string  `json:"url"`
	Label         string  `json:"label"`
	RuleScore     float64 `json:"rule_score"`
	SemanticScore float64 `json:"semantic_score"`
}

// ResultsResponse is returned by GET /v1/batches/:id/results: the
// comparison plus every completed member's artifact summary.
type ResultsResponse struct {
	Comparison *ComparisonResponse      `json:"comparison"`
	Artifacts  []MemberArtifactResponse `json:"artifacts"`
}

func toMemberArtifacts(members []batch.Member, jobs []*analysis.Job, artifacts []*analysis.Artifact) []MemberArtifactResponse {
	byJobID := make(map[string]*analysis.Artifact, len(artifacts))
	for _, a := range artifacts {
		byJobID[a.JobID.String()] = a
	}

	labelByJobID := make(map[string]string, len(members))
	for _, m := range members {
		labelByJobID[m.ChildJobID.String()] = m.Label
	}

	urlByJobID := make(map[string]string, len(jobs))
	for _, j := range jobs {
		urlByJobID[j.ID.String()] = j.URL
	}

	out := make([]MemberArtifactResponse, 0, len(artifacts))
	for _, j := range jobs {
		jobID := j.ID.String()
		a, ok := byJobID[jobID]
		if !ok {
			continue
		}
		out = append(out, MemberArtifactResponse{
			JobID:         jobID,
			URL:           urlByJobID[jobID],
			Label:         labelByJobID[jobID],
			RuleScore:     a.RuleScore,
			SemanticScore: a.SemanticScore,
		})
	}
	return out
}

func toStatusResponse(b *batch.Batch, jobs []*analysis.Job) *StatusResponse {
	statusByJobID := make(map[string]analysis.JobStatus, len(jobs))
	progressByJobID := make(map[string]int, len(jobs))
	for _, j := range jobs {
		jobID := j.ID.String()
		statusByJobID[jobID] = j.Status
		progressByJobID[jobID] = j.Progress
	}

	members := make([]MemberResponse, len(b.Members))
	for i, m := range b.Members {
		jobID := m.ChildJobID.String()
		members[i] = MemberResponse{
			JobID:      jobID,
			Label:      m.Label,
			IsPrimary:  m.IsPrimary,
			OrderIndex: m.OrderIndex,
			Status:     string(statusByJobID[jobID]),
			Progress:   progressByJobID[jobID],
		}
	}
	return &StatusResponse{
		ID:             b.ID.String(),
		Name:           b.Name,
		Status:         string(b.Status),
		Progress:       b.Progress,
		CompletedCount: b.CompletedCount,
		FailedCount:    b.FailedCount,
		Total:          b.Total,
		CreatedAt:      b.CreatedAt,
		StartedAt:      b.StartedAt,
		CompletedAt:    b.CompletedAt,
		ErrorMessage:   b.ErrorMessage,
		Members:        members,
	}
}

func toComparisonResponse(c *batch.Comparison) *ComparisonResponse {
	resp := &ComparisonResponse{
		BatchID:         c.BatchID.String(),
		RuleRanking:     toRankedEntries(c.RuleRanking),
		SemanticRanking: toRankedEntries(c.SemanticRanking),
		RuleAverage:     c.RuleAverage,
		SemanticAverage: c.SemanticAverage,
		Insights:        c.Insights,
		Opportunities:   c.Opportunities,
		Threats:         c.Threats,
		DurationSeconds: c.DurationSeconds,
	}
	if c.RuleLeader != nil {
		resp.RuleLeader = &WinnerResponse{URL: c.RuleLeader.URL, Label: c.RuleLeader.Label, Score: c.RuleLeader.Score}
	}
	if c.SemanticLeader != nil {
		resp.SemanticLeader = &WinnerResponse{URL: c.SemanticLeader.URL, Label: c.SemanticLeader.Label, Score: c.SemanticLeader.Score}
	}
	if c.OverallWinner != nil {
		resp.OverallWinner = &OverallWinnerResponse{
			URL:    c.OverallWinner.URL,
			Label:  c.OverallWinner.Label,
			Reason: c.OverallWinner.Reason,
		}
	}
	return resp
}

func toRankedEntries(entries []batch.RankedEntry) []RankedEntryResponse {
	out := make([]RankedEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = RankedEntryResponse{
			URL:              e.URL,
			Label:            e.Label,
			Score:            e.Score,
			Rank:             e.Rank,
			DeltaFromLeader:  e.DeltaFromLeader,
			DeltaFromAverage: e.DeltaFromAverage,
		}
	}
	return out
}
