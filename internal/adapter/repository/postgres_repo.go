package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"post-responder/internal/common"
	"post-responder/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgresRepo 实现了 port.RecordStore 接口
type PostgresRepo struct {
	db *gorm.DB
}

// NewPostgresRepo 初始化数据库连接并自动迁移表结构
// 调用方负责在退出时 Close
func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "连接数据库失败", err)
	}

	if err := db.AutoMigrate(&itemRow{}, &responseRow{}, &profileRow{}); err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "数据库迁移失败", err)
	}

	return &PostgresRepo{db: db}, nil
}

// NewWithDB 使用已有的 gorm 连接，不做迁移
func NewWithDB(db *gorm.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Close 释放底层连接池
func (r *PostgresRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertItem 首次见到帖子时写入，已存在则保持原样
func (r *PostgresRepo) UpsertItem(ctx context.Context, item *domain.Item) error {
	if item == nil || item.ID == "" {
		return common.NewError(common.ErrCodeInvalidInput, "item id is required")
	}

	row := itemRowFrom(item)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(row).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("保存帖子 %s 失败", item.ID), err)
	}
	return nil
}

// GetClassification 只返回已经分类过的帖子
func (r *PostgresRepo) GetClassification(ctx context.Context, itemID string) (*domain.ClassificationRecord, error) {
	var row itemRow
	err := r.db.WithContext(ctx).
		Where("id = ? AND requires_response IS NOT NULL", itemID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("查询分类 %s 失败", itemID), err)
	}
	return row.classification(), nil
}

// UpsertClassification 把分类结果写到帖子记录上，帖子还没入库时补一条空记录
func (r *PostgresRepo) UpsertClassification(ctx context.Context, itemID string, requiresResponse bool) error {
	now := time.Now()
	row := &itemRow{
		ID:               itemID,
		RequiresResponse: &requiresResponse,
		ClassifiedAt:     &now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"requires_response", "classified_at", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("保存分类 %s 失败", itemID), err)
	}
	return nil
}

// GetResponse 查询 (帖子, 人设) 的回复记录，不论状态
func (r *PostgresRepo) GetResponse(ctx context.Context, itemID, profileID string) (*domain.ResponseRecord, error) {
	var row responseRow
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND profile_id = ?", itemID, profileID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("查询回复记录 %s/%s 失败", itemID, profileID), err)
	}
	return row.toDomain(), nil
}

// InsertResponse 依赖联合主键做插入，冲突时不写入并返回 common.ErrAlreadyResponded
func (r *PostgresRepo) InsertResponse(ctx context.Context, record *domain.ResponseRecord) error {
	row := responseRowFrom(record)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if result.Error != nil {
		return common.WrapError(common.ErrCodeDatabase,
			fmt.Sprintf("写入回复记录 %s/%s 失败", record.ItemID, record.ProfileID), result.Error)
	}
	if result.RowsAffected == 0 {
		return common.ErrAlreadyResponded
	}
	record.CreatedAt = row.CreatedAt
	record.UpdatedAt = row.UpdatedAt
	return nil
}

// ConfirmResponse 只更新令牌匹配且仍在占位状态的记录
func (r *PostgresRepo) ConfirmResponse(ctx context.Context, itemID, profileID, token string, reply *domain.Reply) error {
	if reply == nil {
		return common.NewError(common.ErrCodeInvalidInput, "reply is required")
	}
	result := r.db.WithContext(ctx).
		Model(&responseRow{}).
		Where("item_id = ? AND profile_id = ? AND token = ? AND status = ?",
			itemID, profileID, token, string(domain.ResponseReserved)).
		Updates(map[string]any{
			"status":     string(domain.ResponsePublished),
			"reply_id":   reply.ID,
			"replied_at": reply.CreatedAt,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return common.WrapError(common.ErrCodeDatabase,
			fmt.Sprintf("确认回复记录 %s/%s 失败", itemID, profileID), result.Error)
	}
	if result.RowsAffected == 0 {
		return common.ErrReservationLost
	}
	return nil
}

// DeleteResponse 撤销占位，已发布的记录不会被删除
func (r *PostgresRepo) DeleteResponse(ctx context.Context, itemID, profileID, token string) error {
	result := r.db.WithContext(ctx).
		Where("item_id = ? AND profile_id = ? AND token = ? AND status = ?",
			itemID, profileID, token, string(domain.ResponseReserved)).
		Delete(&responseRow{})
	if result.Error != nil {
		return common.WrapError(common.ErrCodeDatabase,
			fmt.Sprintf("撤销回复记录 %s/%s 失败", itemID, profileID), result.Error)
	}
	if result.RowsAffected == 0 {
		return common.ErrReservationLost
	}
	return nil
}

// GetProfile 查询回复人设
func (r *PostgresRepo) GetProfile(ctx context.Context, profileID string) (*domain.ResponseProfile, error) {
	var row profileRow
	err := r.db.WithContext(ctx).Where("id = ?", profileID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile %s: %w", profileID, common.ErrNotFound)
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("查询人设 %s 失败", profileID), err)
	}
	return row.toDomain(), nil
}
