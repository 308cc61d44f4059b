package service

import (
	"context"
	"fmt"
	"strconv"

	"post-responder/internal/common"
	"post-responder/internal/domain"
	"post-responder/internal/metrics"
	"post-responder/internal/port"

	"go.uber.org/zap"
)

// ClassificationSchema 分类请求期望的返回字段
var ClassificationSchema = domain.BoolSchema{
	Field:       "requires_response",
	Description: "true if the post should receive a reply, false otherwise",
}

// Classifier 判断帖子是否需要回复，每个帖子只问一次模型
type Classifier struct {
	backend port.GenerationBackend
	store   port.RecordStore
	model   domain.ModelRef
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewClassifier(backend port.GenerationBackend, store port.RecordStore, model domain.ModelRef, logger *zap.Logger) *Classifier {
	if model.IsZero() {
		model = domain.DefaultModelRef
	}
	return &Classifier{backend: backend, store: store, model: model, logger: logger}
}

// WithMetrics 统计真正发给模型的分类请求
func (c *Classifier) WithMetrics(m *metrics.Metrics) *Classifier {
	c.metrics = m
	return c
}

// RequiresResponse 先查库，没有记录才调用模型，结果落库后返回
// 模型出错时不落库，下一轮会重新分类
func (c *Classifier) RequiresResponse(ctx context.Context, item *domain.Item) (bool, error) {
	existing, err := c.store.GetClassification(ctx, item.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return existing.RequiresResponse, nil
	}

	human, err := classifyTemplate.Format(map[string]any{
		"title": item.Title,
		"body":  item.Body,
	})
	if err != nil {
		return false, common.WrapError(common.ErrCodeInternal, "渲染分类模板失败", err)
	}

	required, err := c.backend.Classify(ctx, c.model, ClassificationSchema, domain.Prompt{
		System: classifySystemPrompt,
		Human:  human,
	})
	if err != nil {
		return false, fmt.Errorf("classify %s: %w", item.ID, err)
	}

	if err := c.store.UpsertClassification(ctx, item.ID, required); err != nil {
		return false, err
	}

	if c.metrics != nil {
		c.metrics.Classifications.WithLabelValues(strconv.FormatBool(required)).Inc()
	}
	c.logger.Info("classified post",
		zap.String("item_id", item.ID),
		zap.Bool("requires_response", required))
	return required, nil
}
