package batch

import (
	"context"

	analysisDomain "webscope/internal/core/domain/analysis"
	"webscope/pkg/ulid"
)

// MemberInput describes one URL submitted as part of a batch creation
// request, before its child Job exists.
type MemberInput struct {
	URL        string
	Label      string
	IsPrimary  bool
	OrderIndex int
}

// BatchRepository is the Entity Store's transactional contract over
// Batches (spec §4.1).
type BatchRepository interface {
	// Create is atomic: it creates the batch, N child jobs, and their
	// membership links in one transaction. Fails with INVALID_ARGUMENT
	// (surfaced as pkg/errors.ValidationError) if total is out of
	// [MinMembers,MaxMembers], is_primary is not exactly-once, or
	// order_index is not a contiguous 0..N-1 range.
	Create(ctx context.Context, name string, members []MemberInput) (*Batch, []*analysisDomain.Job, error)

	// Get returns NOT_FOUND if id is absent.
	Get(ctx context.Context, id ulid.ULID) (*Batch, error)

	// Advance applies mutation under the same monotonicity rules as
	// analysis.JobRepository.Advance.
	Advance(ctx context.Context, id ulid.ULID, mutation Mutation) (*Batch, error)

	// Snapshot is the consistent read used by the batch pipeline to
	// compute quorum and comparisons: the Batch, its member Jobs, and any
	// Artifacts already persisted for completed members.
	Snapshot(ctx context.Context, id ulid.ULID) (*Batch, []*analysisDomain.Job, []*analysisDomain.Artifact, error)
}

// ComparisonRepository is the Entity Store's transactional contract over
// Comparisons.
type ComparisonRepository interface {
	// Save rejects if the Batch is not terminal, has fewer than
	// QuorumMinCompleted completed members, or already has a Comparison.
	// It runs in its own write, after and apart from the Advance that
	// moves the Batch to COMPLETED.
	Save(ctx context.Context, comparison *Comparison) error

	// Get returns NOT_FOUND if the Batch has no Comparison.
	Get(ctx context.Context, batchID ulid.ULID) (*Comparison, error)
}
