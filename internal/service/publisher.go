package service

import (
	"context"
	"fmt"

	"post-responder/internal/common"
	"post-responder/internal/domain"
	"post-responder/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher 发布回复并记录结果
//
// 发布分三步: 先以随机令牌占位 (pending)，再调用内容源发布，最后把占位确认为 published。
// 占位依赖 (item_id, profile_id) 的唯一约束，同一对键只会有一个进程拿到。
// 发布失败时撤销占位，下一轮可以重来；发布成功但确认前崩溃时占位会留下，
// 该帖子之后一律跳过，宁可漏回也不重复回复。
type Publisher struct {
	source   port.ContentSource
	store    port.RecordStore
	notifier port.Notifier
	logger   *zap.Logger
	newToken func() string
}

// NewPublisher notifier 可以为 nil
func NewPublisher(source port.ContentSource, store port.RecordStore, notifier port.Notifier, logger *zap.Logger) *Publisher {
	return &Publisher{
		source:   source,
		store:    store,
		notifier: notifier,
		logger:   logger,
		newToken: uuid.NewString,
	}
}

// Publish 不重试发布；已有记录时返回 common.ErrAlreadyResponded
// 回复已发出但确认失败时返回的错误包含 common.ErrReplyUnrecorded
func (p *Publisher) Publish(ctx context.Context, item *domain.Item, profile *domain.ResponseProfile, text string) (*domain.ResponseRecord, error) {
	record := &domain.ResponseRecord{
		ItemID:    item.ID,
		ProfileID: profile.ID,
		Status:    domain.ResponseReserved,
		Token:     p.newToken(),
		Content:   text,
	}

	if err := p.store.InsertResponse(ctx, record); err != nil {
		return nil, err
	}

	reply, err := p.source.Reply(ctx, item, text)
	if err != nil {
		// 撤销不受外部取消影响，否则占位会一直留着
		if delErr := p.store.DeleteResponse(context.WithoutCancel(ctx), item.ID, profile.ID, record.Token); delErr != nil {
			p.logger.Error("failed to release reservation after reply failure",
				zap.String("item_id", item.ID),
				zap.String("profile_id", profile.ID),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("reply to %s: %w", item.ID, err)
	}

	if err := p.store.ConfirmResponse(context.WithoutCancel(ctx), item.ID, profile.ID, record.Token, reply); err != nil {
		p.logger.Error("reply published but not recorded, reservation left pending",
			zap.String("item_id", item.ID),
			zap.String("profile_id", profile.ID),
			zap.String("reply_id", reply.ID),
			zap.Error(err))
		return nil, common.WrapError(common.ErrCodeDatabase, "回复已发布但确认失败",
			fmt.Errorf("%w: %w", common.ErrReplyUnrecorded, err))
	}

	repliedAt := reply.CreatedAt
	record.Status = domain.ResponsePublished
	record.ReplyID = reply.ID
	record.RepliedAt = &repliedAt

	if p.notifier != nil {
		if err := p.notifier.NotifyReply(ctx, item, record); err != nil {
			p.logger.Warn("failed to send reply notification",
				zap.String("item_id", item.ID),
				zap.Error(err))
		}
	}

	return record, nil
}
