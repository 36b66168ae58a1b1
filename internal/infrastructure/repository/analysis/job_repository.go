package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	domain "webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/common"
	apperrors "webscope/pkg/errors"
	"webscope/pkg/ulid"
)

// jobCacheTTL bounds how long a cached Job status can lag Postgres; short
// enough that a missed invalidation self-heals quickly (spec §4.1: the
// cache is an optimization, never the source of truth).
const jobCacheTTL = 10 * time.Second

// JobRepository implements analysis.JobRepository using PostgreSQL, with
// an optional cache-aside read path in front of Get.
type JobRepository struct {
	db    *gorm.DB
	cache common.RedisClient // nil disables caching
}

// NewJobRepository creates a new JobRepository bound to db with no cache.
// Used for transaction-scoped instances, where a short-lived handle makes
// caching pointless.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// NewJobRepositoryWithCache creates a new JobRepository bound to db whose
// Get reads go through cache first.
func NewJobRepositoryWithCache(db *gorm.DB, cache common.RedisClient) *JobRepository {
	return &JobRepository{db: db, cache: cache}
}

var _ domain.JobRepository = (*JobRepository)(nil)

// Create inserts a new PENDING Job for url, optionally attached to batchID.
func (r *JobRepository) Create(ctx context.Context, url string, batchID *ulid.ULID) (*domain.Job, error) {
	job := &domain.Job{
		ID:          ulid.New(),
		URL:         url,
		Status:      domain.JobPending,
		Progress:    0,
		CurrentStep: "",
		CreatedAt:   time.Now(),
		BatchID:     batchID,
	}

	model, err := jobFromDomain(job)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewConflictError("job already exists")
		}
		return nil, err
	}
	return model.toDomain()
}

// Get returns the Job for id or a NOT_FOUND error. Reads go through the
// cache when one is configured; a cache miss or error always falls
// through to Postgres.
func (r *JobRepository) Get(ctx context.Context, id ulid.ULID) (*domain.Job, error) {
	cacheKey := jobCacheKey(id)

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKey); err == nil {
			var job domain.Job
			if jsonErr := json.Unmarshal([]byte(cached), &job); jsonErr == nil {
				return &job, nil
			}
		}
	}

	var model jobModel
	if err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("job")
		}
		return nil, err
	}

	job, err := model.toDomain()
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if encoded, err := json.Marshal(job); err == nil {
			_ = r.cache.Set(ctx, cacheKey, encoded, jobCacheTTL)
		}
	}
	return job, nil
}

func jobCacheKey(id ulid.ULID) string {
	return "job:" + id.String()
}

// Advance applies mutation's non-nil fields to the Job and persists it.
func (r *JobRepository) Advance(ctx context.Context, id ulid.ULID, mutation domain.JobMutation) (*domain.Job, error) {
	var model jobModel
	if err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("job")
		}
		return nil, err
	}

	job, err := model.toDomain()
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, apperrors.NewInvariantViolationError("job is already terminal")
	}
	if mutation.Status != nil && !job.Status.CanTransitionTo(*mutation.Status) {
		return nil, apperrors.NewInvariantViolationError("illegal job status transition")
	}
	if mutation.Progress != nil && *mutation.Progress < job.Progress {
		return nil, apperrors.NewInvariantViolationError("job progress must not decrease")
	}

	applyJobMutation(job, mutation)

	updated, err := jobFromDomain(job)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Save(updated).Error; err != nil {
		return nil, err
	}

	if r.cache != nil {
		_ = r.cache.Delete(ctx, jobCacheKey(id))
	}
	return updated.toDomain()
}

// ListByBatch returns all jobs attached to batchID, unordered.
func (r *JobRepository) ListByBatch(ctx context.Context, batchID ulid.ULID) ([]*domain.Job, error) {
	var models []jobModel
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID.String()).Find(&models).Error; err != nil {
		return nil, err
	}

	jobs := make([]*domain.Job, len(models))
	for i := range models {
		job, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs[i] = job
	}
	return jobs, nil
}

func applyJobMutation(job *domain.Job, m domain.JobMutation) {
	if m.Status != nil {
		job.Status = *m.Status
	}
	if m.Progress != nil {
		job.Progress = *m.Progress
	}
	if m.CurrentStep != nil {
		job.CurrentStep = *m.CurrentStep
	}
	if m.StartedAt != nil {
		job.StartedAt = m.StartedAt
	}
	if m.CompletedAt != nil {
		job.CompletedAt = m.CompletedAt
	}
	if m.ErrorMessage != nil {
		job.ErrorMessage = m.ErrorMessage
	}
	if m.ErrorDetails != nil {
		job.ErrorDetails = m.ErrorDetails
	}
}

// isUniqueViolation checks if the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "23505") ||
		strings.Contains(errStr, "unique constraint") ||
		strings.Contains(errStr, "duplicate key")
}
