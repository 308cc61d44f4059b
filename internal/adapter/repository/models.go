package repository

import (
	"time"

	"post-responder/internal/domain"
)

// itemRow 帖子和它的分类结果存在同一行
type itemRow struct {
	ID               string `gorm:"primaryKey"`
	StreamID         string `gorm:"index"`
	Title            string
	Body             string `gorm:"type:text"`
	Author           string
	URL              string
	RequiresResponse *bool
	ClassifiedAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (itemRow) TableName() string { return "items" }

func itemRowFrom(item *domain.Item) *itemRow {
	return &itemRow{
		ID:        item.ID,
		StreamID:  item.StreamID,
		Title:     item.Title,
		Body:      item.Body,
		Author:    item.Author,
		URL:       item.URL,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.CreatedAt,
	}
}

func (r *itemRow) classification() *domain.ClassificationRecord {
	record := &domain.ClassificationRecord{
		ItemID:    r.ID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.RequiresResponse != nil {
		record.RequiresResponse = *r.RequiresResponse
	}
	if r.ClassifiedAt != nil {
		record.CreatedAt = *r.ClassifiedAt
	}
	return record
}

// responseRow (item_id, profile_id) 联合主键保证每个帖子每个人设最多一条
type responseRow struct {
	ItemID    string `gorm:"primaryKey"`
	ProfileID string `gorm:"primaryKey"`
	Status    string `gorm:"index;not null"`
	Token     string `gorm:"not null"`
	Content   string `gorm:"type:text"`
	ReplyID   string
	RepliedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (responseRow) TableName() string { return "response_records" }

func responseRowFrom(record *domain.ResponseRecord) *responseRow {
	return &responseRow{
		ItemID:    record.ItemID,
		ProfileID: record.ProfileID,
		Status:    string(record.Status),
		Token:     record.Token,
		Content:   record.Content,
		ReplyID:   record.ReplyID,
		RepliedAt: record.RepliedAt,
	}
}

func (r *responseRow) toDomain() *domain.ResponseRecord {
	return &domain.ResponseRecord{
		ItemID:    r.ItemID,
		ProfileID: r.ProfileID,
		Status:    domain.ResponseStatus(r.Status),
		Token:     r.Token,
		Content:   r.Content,
		ReplyID:   r.ReplyID,
		RepliedAt: r.RepliedAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// profileRow 由外部后台维护，这里只读
// llm_provider / llm_model 为空表示使用默认模型
type profileRow struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	SystemPrompt string  `gorm:"type:text"`
	LLMProvider  *string `gorm:"column:llm_provider"`
	LLMModel     *string `gorm:"column:llm_model"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (profileRow) TableName() string { return "response_profiles" }

func (r *profileRow) toDomain() *domain.ResponseProfile {
	profile := &domain.ResponseProfile{
		ID:           r.ID,
		Name:         r.Name,
		SystemPrompt: r.SystemPrompt,
	}
	if r.LLMProvider != nil || r.LLMModel != nil {
		ref := domain.ModelRef{}
		if r.LLMProvider != nil {
			ref.Provider = *r.LLMProvider
		}
		if r.LLMModel != nil {
			ref.Model = *r.LLMModel
		}
		profile.Model = &ref
	}
	return profile
}
