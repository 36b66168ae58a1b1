package analysis

import (
	"context"

	"webscope/pkg/ulid"
)

// JobRepository is the Entity Store's transactional contract over Jobs
// (spec §4.1). Implementations must enforce the invariants of spec §3:
// monotonic status/progress, single Artifact per completed Job.
type JobRepository interface {
	// Create persists a new PENDING job with progress=0.
	Create(ctx context.Context, url string, batchID *ulid.ULID) (*Job, error)

	// Get returns NOT_FOUND if id is absent.
	Get(ctx context.Context, id ulid.ULID) (*Job, error)

	// Advance applies mutation, rejecting non-monotonic progress or an
	// illegal status transition with INVARIANT_VIOLATION.
	Advance(ctx context.Context, id ulid.ULID, mutation JobMutation) (*Job, error)

	// ListByBatch returns a batch's member jobs in no particular order.
	ListByBatch(ctx context.Context, batchID ulid.ULID) ([]*Job, error)
}

// ArtifactRepository is the Entity Store's transactional contract over
// Artifacts.
type ArtifactRepository interface {
	// Save inserts the Job's Artifact, rejecting a second Artifact for the
	// same Job with CONFLICT. It runs in its own write, not in the
	// transaction that moves the Job to COMPLETED, and it does not check
	// the Job's status.
	Save(ctx context.Context, artifact *Artifact) error

	// Get returns NOT_FOUND if the Job has no Artifact.
	Get(ctx context.Context, jobID ulid.ULID) (*Artifact, error)

	// ListByJobIDs batch-fetches artifacts for completed batch members.
	ListByJobIDs(ctx context.Context, jobIDs []ulid.ULID) ([]*Artifact, error)
}
