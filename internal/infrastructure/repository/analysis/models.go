package analysis

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	domain "webscope/internal/core/domain/analysis"
	"webscope/pkg/ulid"
)

// jobModel is the GORM row shape for a Job (spec §3, §6 persisted layout).
type jobModel struct {
	ID           ulid.ULID      `gorm:"type:varchar(26);primaryKey"`
	URL          string         `gorm:"type:text;not null"`
	Status       string         `gorm:"type:varchar(16);not null;index:idx_jobs_status_created,priority:1"`
	Progress     int            `gorm:"not null;default:0"`
	CurrentStep  string         `gorm:"type:varchar(64)"`
	CreatedAt    time.Time      `gorm:"not null;index:idx_jobs_status_created,priority:2"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
	UpdatedAt    *time.Time
	ErrorMessage *string        `gorm:"type:text"`
	ErrorDetails datatypes.JSON `gorm:"type:jsonb"`
	BatchID      *ulid.ULID     `gorm:"type:varchar(26);index"`
}

func (jobModel) TableName() string { return "jobs" }

func jobFromDomain(j *domain.Job) (*jobModel, error) {
	model := &jobModel{
		ID:           j.ID,
		URL:          j.URL,
		Status:       string(j.Status),
		Progress:     j.Progress,
		CurrentStep:  j.CurrentStep,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		UpdatedAt:    j.UpdatedAt,
		ErrorMessage: j.ErrorMessage,
		BatchID:      j.BatchID,
	}
	if j.ErrorDetails != nil {
		raw, err := json.Marshal(j.ErrorDetails)
		if err != nil {
			return nil, err
		}
		model.ErrorDetails = raw
	}
	return model, nil
}

func (m *jobModel) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:           m.ID,
		URL:          m.URL,
		Status:       domain.JobStatus(m.Status),
		Progress:     m.Progress,
		CurrentStep:  m.CurrentStep,
		CreatedAt:    m.CreatedAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		UpdatedAt:    m.UpdatedAt,
		ErrorMessage: m.ErrorMessage,
		BatchID:      m.BatchID,
	}
	if len(m.ErrorDetails) > 0 {
		var details domain.ErrorDetails
		if err := json.Unmarshal(m.ErrorDetails, &details); err != nil {
			return nil, err
		}
		job.ErrorDetails = &details
	}
	return job, nil
}

// artifactModel is the GORM row shape for an Artifact, one-to-one with a
// completed Job.
type artifactModel struct {
	JobID           ulid.ULID      `gorm:"type:varchar(26);primaryKey"`
	PageHTML        string         `gorm:"type:text"`
	PageText        string         `gorm:"type:text"`
	ScreenshotRef   string         `gorm:"type:text"`
	RuleScore       float64
	RuleReport      datatypes.JSON `gorm:"type:jsonb"`
	SemanticScore   float64
	SemanticReport  datatypes.JSON `gorm:"type:jsonb"`
	Suggestions     datatypes.JSON `gorm:"type:jsonb"`
	DurationSeconds float64
	CreatedAt       time.Time
}

func (artifactModel) TableName() string { return "artifacts" }

func artifactFromDomain(a *domain.Artifact) (*artifactModel, error) {
	ruleReport, err := json.Marshal(a.RuleReport)
	if err != nil {
		return nil, err
	}
	semanticReport, err := json.Marshal(a.SemanticReport)
	if err != nil {
		return nil, err
	}
	suggestions, err := json.Marshal(a.Suggestions)
	if err != nil {
		return nil, err
	}

	return &artifactModel{
		JobID:           a.JobID,
		PageHTML:        a.PageHTML,
		PageText:        a.PageText,
		ScreenshotRef:   a.ScreenshotRef,
		RuleScore:       a.RuleScore,
		RuleReport:      ruleReport,
		SemanticScore:   a.SemanticScore,
		SemanticReport:  semanticReport,
		Suggestions:     suggestions,
		DurationSeconds: a.DurationSeconds,
	}, nil
}

func (m *artifactModel) toDomain() (*domain.Artifact, error) {
	artifact := &domain.Artifact{
		JobID:           m.JobID,
		PageHTML:        m.PageHTML,
		PageText:        m.PageText,
		ScreenshotRef:   m.ScreenshotRef,
		RuleScore:       m.RuleScore,
		SemanticScore:   m.SemanticScore,
		DurationSeconds: m.DurationSeconds,
	}
	if len(m.RuleReport) > 0 {
		if err := json.Unmarshal(m.RuleReport, &artifact.RuleReport); err != nil {
			return nil, err
		}
	}
	if len(m.SemanticReport) > 0 {
		if err := json.Unmarshal(m.SemanticReport, &artifact.SemanticReport); err != nil {
			return nil, err
		}
	}
	if len(m.Suggestions) > 0 {
		if err := json.Unmarshal(m.Suggestions, &artifact.Suggestions); err != nil {
			return nil, err
		}
	}
	return artifact, nil
}
