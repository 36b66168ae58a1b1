// Package analysis holds the core domain types for the single-URL analysis
// pipeline: jobs, the page snapshots fed to scorers, the score reports they
// produce, and the durable artifact that results from a completed job.
package analysis

import (
	"time"

	"webscope/pkg/ulid"
)

// JobStatus is the lifecycle state of a Job. It only ever advances along
// PENDING -> PROCESSING -> (COMPLETED | FAILED); there are no back-transitions.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status is one a Job never leaves.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransitionTo reports whether moving from s to next is a legal step
// along PENDING -> PROCESSING -> (COMPLETED | FAILED). A self-transition
// is legal only while s is non-terminal, to allow repeated in-place
// progress updates during PROCESSING.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s == next {
		return !s.Terminal()
	}
	switch s {
	case JobPending:
		return next == JobProcessing
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// ErrorDetails is the structured failure payload recorded on a terminal
// FAILED Job, per spec §7: {kind, step, progress_at_failure}.
type ErrorDetails struct {
	Kind              string `json:"kind"`
	Step              string `json:"step"`
	ProgressAtFailure int    `json:"progress_at_failure"`
}

// Job is a single-URL analysis request with durable identity.
type Job struct {
	ID           ulid.ULID
	URL          string
	Status       JobStatus
	Progress     int
	CurrentStep  string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	UpdatedAt    *time.Time
	ErrorMessage *string
	ErrorDetails *ErrorDetails
	BatchID      *ulid.ULID
}

// JobMutation bundles the fields advanceJob is allowed to change in a
// single call; zero-value pointers mean "leave unchanged".
type JobMutation struct {
	Status       *JobStatus
	Progress     *int
	CurrentStep  *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
	ErrorDetails *ErrorDetails
}

// Priority is the severity band attached to a rule or semantic suggestion.
// Ordering for sort/merge purposes is critical < high < medium < low.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// rank gives Priority a total order for stable sorting: lower is more severe.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Less reports whether p is strictly more severe than other.
func (p Priority) Less(other Priority) bool {
	return p.rank() < other.rank()
}

// Suggestion is a single actionable recommendation surfaced by a scorer.
type Suggestion struct {
	Category    string   `json:"category"`
	Priority    Priority `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
}

// StructuredDataEntry is one JSON-LD / microdata entry extracted by the
// Fetcher, keyed on its schema.org @type.
type StructuredDataEntry struct {
	Type string `json:"@type"`
}

// PageMeta holds the title/description/meta-tag fields a Fetcher extracts.
type PageMeta struct {
	Title          string
	Description    string
	OpenGraphTags  map[string]string
	CanonicalURL   string
	ViewportPresent bool
}

// PageSnapshot is what a Fetcher produces for a URL: everything the Rule
// Scorer and Semantic Scorer need, held in memory until PERSIST.
type PageSnapshot struct {
	URL            string
	HTML           string
	Text           string
	Meta           PageMeta
	Headings       map[int][]string // heading level (1-6) -> heading texts
	StructuredData []StructuredDataEntry
	LoadTimeSeconds float64
	ScreenshotRef   string // optional; empty if no screenshot was captured
	ScreenshotBytes []byte // optional raw screenshot content, uploaded via BlobStore before persist
}

// CategoryScores is the per-category breakdown behind a rule score.
type CategoryScores struct {
	Meta           float64
	Headings       float64
	Performance    float64
	Mobile         float64
	Security       float64
	StructuredData float64
}

// ScoreReport is the Rule Scorer's deterministic output (spec §4.3).
type ScoreReport struct {
	Score       float64
	Categories  CategoryScores
	Issues      []string
	Suggestions []Suggestion
}

// SemanticReport is the Semantic Scorer's output (spec §4.4).
type SemanticReport struct {
	WhatItDoes        string
	ProductsServices  string
	TargetAudience    string
	UniqueValue       string
	ClarityScore      int // 1..10
	OverallImpression string
	Suggestions       []Suggestion
	Score             float64 // derived deterministically, [0,100]
}

// Artifact is the durable, one-to-one record of a COMPLETED Job's outputs.
type Artifact struct {
	JobID           ulid.ULID
	PageHTML        string
	PageText        string
	ScreenshotRef   string
	RuleScore       float64
	RuleReport      ScoreReport
	SemanticScore   float64
	SemanticReport  SemanticReport
	Suggestions     []Suggestion
	DurationSeconds float64
}

const (
	// MaxURLBytes is the maximum accepted byte length of a submitted URL.
	MaxURLBytes = 2048
	// MaxStoredContentBytes is the truncation bound applied to page HTML
	// and page text before they are written to the Artifact.
	MaxStoredContentBytes = 50 * 1024
	// MaxSemanticInputChars is the truncation bound applied to page text
	// before it is handed to the Semantic Scorer.
	MaxSemanticInputChars = 2000
)
