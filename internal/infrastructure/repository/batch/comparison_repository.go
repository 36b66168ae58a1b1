package batch

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	domain "webscope/internal/core/domain/batch"
	apperrors "webscope/pkg/errors"
	"webscope/pkg/ulid"
)

// ComparisonRepository implements batch.ComparisonRepository using PostgreSQL.
type ComparisonRepository struct {
	db *gorm.DB
}

// NewComparisonRepository creates a new ComparisonRepository bound to db.
func NewComparisonRepository(db *gorm.DB) *ComparisonRepository {
	return &ComparisonRepository{db: db}
}

var _ domain.ComparisonRepository = (*ComparisonRepository)(nil)

// Save writes comparison. batch_id is unique: a Batch gets at most one
// Comparison over its lifetime.
func (r *ComparisonRepository) Save(ctx context.Context, comparison *domain.Comparison) error {
	var batch batchModel
	if err := r.db.WithContext(ctx).Where("id = ?", comparison.BatchID.String()).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFoundError("batch")
		}
		return err
	}
	if !domain.Status(batch.Status).Terminal() {
		return apperrors.NewInvariantViolationError("batch must be terminal before a comparison is saved")
	}
	if batch.CompletedCount < domain.QuorumMinCompleted {
		return apperrors.NewInvariantViolationError("batch does not meet the minimum completed-member quorum")
	}

	model, err := comparisonFromDomain(comparison)
	if err != nil {
		return err
	}
	model.CreatedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError("comparison already exists for batch")
		}
		return err
	}
	return nil
}

// Get returns the Comparison for batchID or a NOT_FOUND error.
func (r *ComparisonRepository) Get(ctx context.Context, batchID ulid.ULID) (*domain.Comparison, error) {
	var model comparisonModel
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID.String()).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("comparison")
		}
		return nil, err
	}
	return model.toDomain()
}
