package service

import (
	"context"
	"errors"

	"post-responder/internal/adapter/filter"
	"post-responder/internal/common"
	"post-responder/internal/domain"
	"post-responder/internal/port"

	"go.uber.org/zap"
)

// Outcome 单个帖子经过流水线后的结果
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeAlreadyResponded
	OutcomeEmpty
	OutcomeNotRequired
	OutcomePublished
	// OutcomeUnrecorded 回复已发出，但回复记录停留在占位状态
	OutcomeUnrecorded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyResponded:
		return "already_responded"
	case OutcomeEmpty:
		return "empty"
	case OutcomeNotRequired:
		return "not_required"
	case OutcomePublished:
		return "published"
	case OutcomeUnrecorded:
		return "unrecorded"
	default:
		return "failed"
	}
}

// ReplySubmitted 内容源上是否真的出现了一条回复
func (o Outcome) ReplySubmitted() bool {
	return o == OutcomePublished || o == OutcomeUnrecorded
}

// Pipeline 依次执行: 查重 -> 保存帖子 -> 分类 -> 解析上下文 -> 生成 -> 发布
type Pipeline struct {
	store      port.RecordStore
	classifier *Classifier
	resolver   *ContextResolver
	generator  *ResponseGenerator
	publisher  *Publisher
	logger     *zap.Logger
}

func NewPipeline(
	store port.RecordStore,
	classifier *Classifier,
	resolver *ContextResolver,
	generator *ResponseGenerator,
	publisher *Publisher,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:      store,
		classifier: classifier,
		resolver:   resolver,
		generator:  generator,
		publisher:  publisher,
		logger:     logger,
	}
}

// Process 处理一个帖子；返回错误时 Outcome 为 OutcomeFailed，且不会留下回复记录
// 唯一的例外是发布成功后确认失败，此时返回 OutcomeUnrecorded 和错误，占位记录保留
func (p *Pipeline) Process(ctx context.Context, item *domain.Item, profile *domain.ResponseProfile) (Outcome, error) {
	existing, err := p.store.GetResponse(ctx, item.ID, profile.ID)
	if err != nil {
		return OutcomeFailed, err
	}
	if existing != nil {
		return OutcomeAlreadyResponded, nil
	}

	log := p.logger.With(zap.String("item_id", item.ID), zap.String("profile_id", profile.ID))
	log.Info("new post", zap.String("title", item.Title))

	if !filter.HasContent(item) {
		log.Info("post has no text, skipping")
		return OutcomeEmpty, nil
	}

	if err := p.store.UpsertItem(ctx, item); err != nil {
		return OutcomeFailed, err
	}

	required, err := p.classifier.RequiresResponse(ctx, item)
	if err != nil {
		return OutcomeFailed, err
	}
	if !required {
		log.Info("post does not require a response")
		return OutcomeNotRequired, nil
	}

	self, parent, err := p.resolver.Resolve(ctx, item)
	if err != nil {
		return OutcomeFailed, err
	}

	log.Info("generating reply",
		zap.String("model", profile.ResolveModel().String()),
		zap.Stringer("parent", parent.Kind))
	text, err := p.generator.Generate(ctx, profile, self, parent)
	if err != nil {
		return OutcomeFailed, err
	}
	log.Info("reply generated", zap.String("reply", text))

	record, err := p.publisher.Publish(ctx, self, profile, text)
	if errors.Is(err, common.ErrAlreadyResponded) {
		log.Info("another run already responded to this post")
		return OutcomeAlreadyResponded, nil
	}
	if errors.Is(err, common.ErrReplyUnrecorded) {
		return OutcomeUnrecorded, err
	}
	if err != nil {
		return OutcomeFailed, err
	}

	log.Info("reply posted", zap.String("reply_id", record.ReplyID))
	return OutcomePublished, nil
}
