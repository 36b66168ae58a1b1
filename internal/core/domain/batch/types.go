// Package batch holds the core domain types for the batch-of-URLs pipeline:
// batches, their member jobs, and the comparison report produced once a
// batch reaches a terminal state.
package batch

import (
	"time"

	"webscope/pkg/ulid"
)

// Status mirrors analysis.JobStatus's lifecycle shape for Batches.
type Status string

const (
	Pending    Status = "PENDING"
	Processing Status = "PROCESSING"
	Completed  Status = "COMPLETED"
	Failed     Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// CanTransitionTo reports whether moving from s to next is a legal step
// along PENDING -> PROCESSING -> (COMPLETED | FAILED), mirroring
// analysis.JobStatus.CanTransitionTo. A self-transition is legal only
// while s is non-terminal, to allow repeated in-place progress updates
// during PROCESSING. COMPLETED -> FAILED is the one allowed
// back-transition: the batch pipeline marks a batch COMPLETED before
// saving its Comparison (Comparison.Save requires the batch already be
// terminal), so a Save failure has to revert that optimistic transition.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return !s.Terminal()
	}
	if s == Completed && next == Failed {
		return true
	}
	switch s {
	case Pending:
		return next == Processing
	case Processing:
		return next == Completed || next == Failed
	default:
		return false
	}
}

// Member is one ordered entry in a Batch's member list (spec §3): a
// back-reference to a child Job plus presentation metadata. Members are
// immutable after batch creation.
type Member struct {
	ChildJobID ulid.ULID
	Label      string
	IsPrimary  bool
	OrderIndex int
}

// Batch is an ordered group of 2-5 Jobs analyzed together for comparison.
type Batch struct {
	ID             ulid.ULID
	Name           string
	Status         Status
	Progress       int
	Total          int
	CompletedCount int
	FailedCount    int
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	UpdatedAt      *time.Time
	ErrorMessage   *string
	Members        []Member
}

// Mutation bundles the fields advanceBatch is allowed to change.
type Mutation struct {
	Status         *Status
	Progress       *int
	CompletedCount *int
	FailedCount    *int
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ErrorMessage   *string
}

// RankedEntry is one row of a rule or semantic ranking (spec §4.7).
type RankedEntry struct {
	URL               string
	Label             string
	Score             float64
	Rank              int
	DeltaFromLeader   float64
	DeltaFromAverage  float64
	OrderIndex        int
}

// Axis names which scoring dimension a ranking/leader/average belongs to.
type Axis string

const (
	AxisRule     Axis = "rule"
	AxisSemantic Axis = "semantic"
)

// Winner names the rank-1 entry for an axis.
type Winner struct {
	URL   string
	Label string
	Score float64
}

// Comparison is the durable aggregate record for a COMPLETED Batch
// (spec §3, §4.7).
type Comparison struct {
	BatchID             ulid.ULID
	RuleRanking         []RankedEntry
	SemanticRanking     []RankedEntry
	RuleLeader          *Winner
	SemanticLeader      *Winner
	RuleAverage         float64
	SemanticAverage     float64
	Insights            string
	Opportunities       []string
	Threats             []string
	OverallWinner       *OverallWinner
	DurationSeconds     float64
}

// OverallWinner names the narrative call's pick for strongest competitor.
type OverallWinner struct {
	URL    string
	Label  string
	Reason string
}

const (
	// MinMembers and MaxMembers are the inclusive batch-size bounds
	// (spec §3 invariant 7).
	MinMembers = 2
	MaxMembers = 5
	// MaxNameBytes bounds an optional batch name.
	MaxNameBytes = 255
	// QuorumMinCompleted is the minimum number of completed children a
	// batch needs to produce a Comparison (spec's quorum rule).
	QuorumMinCompleted = 2
)
