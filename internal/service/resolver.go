package service

import (
	"context"
	"errors"
	"fmt"

	"post-responder/internal/common"
	"post-responder/internal/domain"
	"post-responder/internal/port"

	"go.uber.org/zap"
)

// ContextResolver 重新获取帖子并解析它转发的原帖
type ContextResolver struct {
	source port.ContentSource
	logger *zap.Logger
}

func NewContextResolver(source port.ContentSource, logger *zap.Logger) *ContextResolver {
	return &ContextResolver{source: source, logger: logger}
}

// Resolve 取帖子的最新内容；原帖相关的问题从不返回错误，只体现在 ParentResult 里
func (r *ContextResolver) Resolve(ctx context.Context, item *domain.Item) (*domain.Item, domain.ParentResult, error) {
	self, err := r.source.GetItem(ctx, item.ID)
	if err != nil {
		return nil, domain.WithoutParent(), fmt.Errorf("refetch %s: %w", item.ID, err)
	}
	if self.CrossRef == "" {
		self.CrossRef = item.CrossRef
	}

	if !self.HasCrossRef() || self.CrossRef == self.ID {
		return self, domain.WithoutParent(), nil
	}

	parent, err := r.source.GetItem(ctx, self.CrossRef)
	switch {
	case err == nil:
		return self, domain.WithParent(parent), nil
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrMalformedReference):
		r.logger.Debug("cross reference does not resolve, treating as original post",
			zap.String("item_id", self.ID),
			zap.String("cross_ref", self.CrossRef),
			zap.Error(err))
		return self, domain.WithoutParent(), nil
	default:
		r.logger.Warn("failed to fetch original post, continuing without it",
			zap.String("item_id", self.ID),
			zap.String("cross_ref", self.CrossRef),
			zap.Error(err))
		return self, domain.ParentFailed(err), nil
	}
}
