package filter

import (
	"iter"
	"strings"
	"time"

	"post-responder/internal/domain"
)

// ItemFilter 在进入流水线之前筛掉不值得处理的帖子
type ItemFilter struct {
	maxAge  time.Duration
	nowFunc func() time.Time
}

// NewItemFilter maxAge <= 0 表示不按时间过滤
func NewItemFilter(maxAge time.Duration) *ItemFilter {
	return &ItemFilter{
		maxAge:  maxAge,
		nowFunc: time.Now,
	}
}

// IsFresh 判断帖子是否在 maxAge 以内，正好等于 maxAge 也保留
func (f *ItemFilter) IsFresh(item *domain.Item) bool {
	if f == nil || f.maxAge <= 0 || item.CreatedAt.IsZero() {
		return true
	}
	current := time.Now()
	if f.nowFunc != nil {
		current = f.nowFunc()
	}
	return current.Sub(item.CreatedAt) <= f.maxAge
}

// HasContent 标题和正文都为空的帖子没有可回答的内容
func HasContent(item *domain.Item) bool {
	return strings.TrimSpace(item.Title) != "" || strings.TrimSpace(item.Body) != ""
}

// Recent 包装一个从新到旧的流，遇到第一个过期帖子就停止
// 后面的帖子只会更旧，没必要再翻页
func (f *ItemFilter) Recent(seq iter.Seq2[*domain.Item, error]) iter.Seq2[*domain.Item, error] {
	return func(yield func(*domain.Item, error) bool) {
		for item, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if !f.IsFresh(item) {
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}
