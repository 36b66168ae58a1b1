package analysis

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	domain "webscope/internal/core/domain/analysis"
	apperrors "webscope/pkg/errors"
	"webscope/pkg/ulid"
)

// ArtifactRepository implements analysis.ArtifactRepository using PostgreSQL.
type ArtifactRepository struct {
	db *gorm.DB
}

// NewArtifactRepository creates a new ArtifactRepository bound to db.
func NewArtifactRepository(db *gorm.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

var _ domain.ArtifactRepository = (*ArtifactRepository)(nil)

// Save writes artifact. job_id is unique; a second Save for the same Job
// is rejected as a conflict (a Job transitions to COMPLETED exactly once).
func (r *ArtifactRepository) Save(ctx context.Context, artifact *domain.Artifact) error {
	model, err := artifactFromDomain(artifact)
	if err != nil {
		return err
	}
	model.CreatedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError("artifact already exists for job")
		}
		return err
	}
	return nil
}

// Get returns the Artifact for jobID or a NOT_FOUND error.
func (r *ArtifactRepository) Get(ctx context.Context, jobID ulid.ULID) (*domain.Artifact, error) {
	var model artifactModel
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID.String()).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("artifact")
		}
		return nil, err
	}
	return model.toDomain()
}

// ListByJobIDs returns the artifacts for any of jobIDs that have one.
func (r *ArtifactRepository) ListByJobIDs(ctx context.Context, jobIDs []ulid.ULID) ([]*domain.Artifact, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(jobIDs))
	for i, id := range jobIDs {
		ids[i] = id.String()
	}

	var models []artifactModel
	if err := r.db.WithContext(ctx).Where("job_id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}

	artifacts := make([]*domain.Artifact, len(models))
	for i := range models {
		artifact, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		artifacts[i] = artifact
	}
	return artifacts, nil
}
