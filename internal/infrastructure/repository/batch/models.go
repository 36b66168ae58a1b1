package batch

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	domain "webscope/internal/core/domain/batch"
	"webscope/pkg/ulid"
)

// batchModel is the GORM row shape for a Batch (spec §3, §6).
type batchModel struct {
	ID             ulid.ULID `gorm:"type:varchar(26);primaryKey"`
	Name           string    `gorm:"type:varchar(255)"`
	Status         string    `gorm:"type:varchar(16);not null;index:idx_batches_status_created,priority:1"`
	Progress       int       `gorm:"not null;default:0"`
	Total          int       `gorm:"not null"`
	CompletedCount int       `gorm:"not null;default:0"`
	FailedCount    int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"not null;index:idx_batches_status_created,priority:2"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
	UpdatedAt      *time.Time
	ErrorMessage   *string `gorm:"type:text"`
}

func (batchModel) TableName() string { return "batches" }

// batchMemberModel is the GORM row shape for one ordered member of a
// Batch. Composite index on (batch_id, order_index) per spec §6.
type batchMemberModel struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	BatchID    ulid.ULID `gorm:"type:varchar(26);not null;index:idx_members_batch_order,priority:1"`
	ChildJobID ulid.ULID `gorm:"type:varchar(26);not null"`
	Label      string    `gorm:"type:varchar(255)"`
	IsPrimary  bool      `gorm:"not null;default:false"`
	OrderIndex int       `gorm:"not null;index:idx_members_batch_order,priority:2"`
}

func (batchMemberModel) TableName() string { return "batch_members" }

func batchFromDomain(b *domain.Batch) *batchModel {
	return &batchModel{
		ID:             b.ID,
		Name:           b.Name,
		Status:         string(b.Status),
		Progress:       b.Progress,
		Total:          b.Total,
		CompletedCount: b.CompletedCount,
		FailedCount:    b.FailedCount,
		CreatedAt:      b.CreatedAt,
		StartedAt:      b.StartedAt,
		CompletedAt:    b.CompletedAt,
		UpdatedAt:      b.UpdatedAt,
		ErrorMessage:   b.ErrorMessage,
	}
}

func (m *batchModel) toDomain(members []domain.Member) *domain.Batch {
	return &domain.Batch{
		ID:             m.ID,
		Name:           m.Name,
		Status:         domain.Status(m.Status),
		Progress:       m.Progress,
		Total:          m.Total,
		CompletedCount: m.CompletedCount,
		FailedCount:    m.FailedCount,
		CreatedAt:      m.CreatedAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		UpdatedAt:      m.UpdatedAt,
		ErrorMessage:   m.ErrorMessage,
		Members:        members,
	}
}

func memberFromDomain(batchID ulid.ULID, m domain.MemberInput, childJobID ulid.ULID) *batchMemberModel {
	return &batchMemberModel{
		BatchID:    batchID,
		ChildJobID: childJobID,
		Label:      m.Label,
		IsPrimary:  m.IsPrimary,
		OrderIndex: m.OrderIndex,
	}
}

func (m *batchMemberModel) toDomain() domain.Member {
	return domain.Member{
		ChildJobID: m.ChildJobID,
		Label:      m.Label,
		IsPrimary:  m.IsPrimary,
		OrderIndex: m.OrderIndex,
	}
}

// comparisonModel is the GORM row shape for a Comparison, one-to-one
// with a COMPLETED Batch.
type comparisonModel struct {
	BatchID         ulid.ULID      `gorm:"type:varchar(26);primaryKey"`
	RuleRanking     datatypes.JSON `gorm:"type:jsonb"`
	SemanticRanking datatypes.JSON `gorm:"type:jsonb"`
	RuleLeader      datatypes.JSON `gorm:"type:jsonb"`
	SemanticLeader  datatypes.JSON `gorm:"type:jsonb"`
	RuleAverage     float64
	SemanticAverage float64
	Insights        string         `gorm:"type:text"`
	Opportunities   datatypes.JSON `gorm:"type:jsonb"`
	Threats         datatypes.JSON `gorm:"type:jsonb"`
	OverallWinner   datatypes.JSON `gorm:"type:jsonb"`
	DurationSeconds float64
	CreatedAt       time.Time
}

func (comparisonModel) TableName() string { return "comparisons" }

func comparisonFromDomain(c *domain.Comparison) (*comparisonModel, error) {
	ruleRanking, err := json.Marshal(c.RuleRanking)
	if err != nil {
		return nil, err
	}
	semanticRanking, err := json.Marshal(c.SemanticRanking)
	if err != nil {
		return nil, err
	}
	ruleLeader, err := json.Marshal(c.RuleLeader)
	if err != nil {
		return nil, err
	}
	semanticLeader, err := json.Marshal(c.SemanticLeader)
	if err != nil {
		return nil, err
	}
	opportunities, err := json.Marshal(c.Opportunities)
	if err != nil {
		return nil, err
	}
	threats, err := json.Marshal(c.Threats)
	if err != nil {
		return nil, err
	}
	overallWinner, err := json.Marshal(c.OverallWinner)
	if err != nil {
		return nil, err
	}

	return &comparisonModel{
		BatchID:         c.BatchID,
		RuleRanking:     ruleRanking,
		SemanticRanking: semanticRanking,
		RuleLeader:      ruleLeader,
		SemanticLeader:  semanticLeader,
		RuleAverage:     c.RuleAverage,
		SemanticAverage: c.SemanticAverage,
		Insights:        c.Insights,
		Opportunities:   opportunities,
		Threats:         threats,
		OverallWinner:   overallWinner,
		DurationSeconds: c.DurationSeconds,
	}, nil
}

func (m *comparisonModel) toDomain() (*domain.Comparison, error) {
	c := &domain.Comparison{
		BatchID:         m.BatchID,
		RuleAverage:     m.RuleAverage,
		SemanticAverage: m.SemanticAverage,
		Insights:        m.Insights,
		DurationSeconds: m.DurationSeconds,
	}
	if len(m.RuleRanking) > 0 {
		if err := json.Unmarshal(m.RuleRanking, &c.RuleRanking); err != nil {
			return nil, err
		}
	}
	if len(m.SemanticRanking) > 0 {
		if err := json.Unmarshal(m.SemanticRanking, &c.SemanticRanking); err != nil {
			return nil, err
		}
	}
	if len(m.RuleLeader) > 0 && string(m.RuleLeader) != "null" {
		if err := json.Unmarshal(m.RuleLeader, &c.RuleLeader); err != nil {
			return nil, err
		}
	}
	if len(m.SemanticLeader) > 0 && string(m.SemanticLeader) != "null" {
		if err := json.Unmarshal(m.SemanticLeader, &c.SemanticLeader); err != nil {
			return nil, err
		}
	}
	if len(m.Opportunities) > 0 {
		if err := json.Unmarshal(m.Opportunities, &c.Opportunities); err != nil {
			return nil, err
		}
	}
	if len(m.Threats) > 0 {
		if err := json.Unmarshal(m.Threats, &c.Threats); err != nil {
			return nil, err
		}
	}
	if len(m.OverallWinner) > 0 && string(m.OverallWinner) != "null" {
		if err := json.Unmarshal(m.OverallWinner, &c.OverallWinner); err != nil {
			return nil, err
		}
	}
	return c, nil
}
