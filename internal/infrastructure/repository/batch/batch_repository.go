package batch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	analysisDomain "webscope/internal/core/domain/analysis"
	domain "webscope/internal/core/domain/batch"
	"webscope/internal/core/domain/common"
	analysisRepo "webscope/internal/infrastructure/repository/analysis"
	apperrors "webscope/pkg/errors"
	"webscope/pkg/ulid"
)

// batchCacheTTL mirrors jobCacheTTL's reasoning: short enough that a
// missed invalidation self-heals, the cache is never authoritative.
const batchCacheTTL = 10 * time.Second

// BatchRepository implements batch.BatchRepository using PostgreSQL, with
// an optional cache-aside read path in front of Get (and so Snapshot).
type BatchRepository struct {
	db    *gorm.DB
	cache common.RedisClient // nil disables caching
}

// NewBatchRepository creates a new BatchRepository bound to db with no
// cache.
func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// NewBatchRepositoryWithCache creates a new BatchRepository bound to db
// whose Get reads go through cache first.
func NewBatchRepositoryWithCache(db *gorm.DB, cache common.RedisClient) *BatchRepository {
	return &BatchRepository{db: db, cache: cache}
}

var _ domain.BatchRepository = (*BatchRepository)(nil)

// Create atomically creates the batch, its member Jobs, and their
// membership links (spec §4.1): the batch row, job rows, and member rows
// commit or roll back together in a single database transaction.
func (r *BatchRepository) Create(ctx context.Context, name string, members []domain.MemberInput) (*domain.Batch, []*analysisDomain.Job, error) {
	total := len(members)
	if total < domain.MinMembers || total > domain.MaxMembers {
		return nil, nil, apperrors.NewValidationError("invalid batch size", "batch must contain between 2 and 5 urls")
	}

	primaryCount := 0
	for i, m := range members {
		if m.OrderIndex != i {
			return nil, nil, apperrors.NewValidationError("invalid order_index", "order_index must be a contiguous 0..N-1 range")
		}
		if m.IsPrimary {
			primaryCount++
		}
	}
	if primaryCount != 1 {
		return nil, nil, apperrors.NewValidationError("invalid is_primary", "exactly one member must be marked primary")
	}

	batchID := ulid.New()
	now := time.Now()

	model := &batchModel{
		ID:        batchID,
		Name:      name,
		Status:    string(domain.Pending),
		Total:     total,
		CreatedAt: now,
	}

	jobs := make([]*analysisDomain.Job, total)
	domainMembers := make([]domain.Member, total)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}

		jobRepo := analysisRepo.NewJobRepository(tx)
		for i, m := range members {
			job, err := jobRepo.Create(ctx, m.URL, &batchID)
			if err != nil {
				return err
			}
			jobs[i] = job

			memberModel := memberFromDomain(batchID, m, job.ID)
			if err := tx.Create(memberModel).Error; err != nil {
				return err
			}
			domainMembers[i] = memberModel.toDomain()
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return model.toDomain(domainMembers), jobs, nil
}

// Get returns the Batch and its members for id, or NOT_FOUND. Reads go
// through the cache when one is configured; a cache miss or error always
// falls through to Postgres.
func (r *BatchRepository) Get(ctx context.Context, id ulid.ULID) (*domain.Batch, error) {
	cacheKey := batchCacheKey(id)

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKey); err == nil {
			var b domain.Batch
			if jsonErr := json.Unmarshal([]byte(cached), &b); jsonErr == nil {
				return &b, nil
			}
		}
	}

	var model batchModel
	if err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("batch")
		}
		return nil, err
	}

	members, err := r.listMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	b := model.toDomain(members)

	if r.cache != nil {
		if encoded, err := json.Marshal(b); err == nil {
			_ = r.cache.Set(ctx, cacheKey, encoded, batchCacheTTL)
		}
	}
	return b, nil
}

func batchCacheKey(id ulid.ULID) string {
	return "batch:" + id.String()
}

// Advance applies mutation's non-nil fields to the Batch and persists it.
func (r *BatchRepository) Advance(ctx context.Context, id ulid.ULID, mutation domain.Mutation) (*domain.Batch, error) {
	var model batchModel
	if err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("batch")
		}
		return nil, err
	}

	currentStatus := domain.Status(model.Status)
	if mutation.Status != nil {
		if !currentStatus.CanTransitionTo(*mutation.Status) {
			return nil, apperrors.NewInvariantViolationError("illegal batch status transition")
		}
	} else if currentStatus.Terminal() {
		return nil, apperrors.NewInvariantViolationError("batch is already terminal")
	}
	if mutation.Progress != nil && *mutation.Progress < model.Progress {
		return nil, apperrors.NewInvariantViolationError("batch progress must not decrease")
	}

	applyBatchMutation(&model, mutation)
	now := time.Now()
	model.UpdatedAt = &now

	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return nil, err
	}
	if r.cache != nil {
		_ = r.cache.Delete(ctx, batchCacheKey(id))
	}

	members, err := r.listMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.toDomain(members), nil
}

// Snapshot returns the Batch, its member Jobs, and any Artifacts already
// persisted for completed members.
func (r *BatchRepository) Snapshot(ctx context.Context, id ulid.ULID) (*domain.Batch, []*analysisDomain.Job, []*analysisDomain.Artifact, error) {
	b, err := r.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	jobRepo := analysisRepo.NewJobRepository(r.db)
	jobs, err := jobRepo.ListByBatch(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	jobIDs := make([]ulid.ULID, len(jobs))
	for i, j := range jobs {
		jobIDs[i] = j.ID
	}

	artifactRepo := analysisRepo.NewArtifactRepository(r.db)
	artifacts, err := artifactRepo.ListByJobIDs(ctx, jobIDs)
	if err != nil {
		return nil, nil, nil, err
	}

	return b, jobs, artifacts, nil
}

func (r *BatchRepository) listMembers(ctx context.Context, batchID ulid.ULID) ([]domain.Member, error) {
	var models []batchMemberModel
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID.String()).Order("order_index ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	members := make([]domain.Member, len(models))
	for i := range models {
		members[i] = models[i].toDomain()
	}
	return members, nil
}

func applyBatchMutation(model *batchModel, m domain.Mutation) {
	if m.Status != nil {
		model.Status = string(*m.Status)
	}
	if m.Progress != nil {
		model.Progress = *m.Progress
	}
	if m.CompletedCount != nil {
		model.CompletedCount = *m.CompletedCount
	}
	if m.FailedCount != nil {
		model.FailedCount = *m.FailedCount
	}
	if m.StartedAt != nil {
		model.StartedAt = m.StartedAt
	}
	if m.CompletedAt != nil {
		model.CompletedAt = m.CompletedAt
	}
	if m.ErrorMessage != nil {
		model.ErrorMessage = m.ErrorMessage
	}
}
