package port

import (
	"context"
	"iter"

	"post-responder/internal/domain"
)

// ContentSource (内容源): 负责拉取新帖子和发布回复
// 目前有 Reddit 和 GitHub Issues 两种实现
type ContentSource interface {
	// ListNew 按从新到旧的顺序惰性产出帖子，每次调用都重新开始
	// 出错时产出 (nil, err) 后结束
	ListNew(ctx context.Context, streamID string) iter.Seq2[*domain.Item, error]

	// GetItem 按 ID 取帖子的最新内容
	// 帖子不存在返回 common.ErrNotFound，ID 格式不对返回 common.ErrMalformedReference
	GetItem(ctx context.Context, id string) (*domain.Item, error)

	// Reply 在帖子下发布回复
	Reply(ctx context.Context, item *domain.Item, text string) (*domain.Reply, error)
}

// GenerationBackend (模型后端): 负责分类和生成
type GenerationBackend interface {
	// Classify 要求模型返回只含一个布尔字段的 JSON
	Classify(ctx context.Context, model domain.ModelRef, schema domain.BoolSchema, prompt domain.Prompt) (bool, error)

	// Complete 返回模型的原始文本输出
	Complete(ctx context.Context, model domain.ModelRef, prompt domain.Prompt) (string, error)
}

// RecordStore (记录仓库): 负责帖子、分类结果、回复记录和回复配置的持久化
// 记录不存在时 Get* 返回 (nil, nil)
type RecordStore interface {
	GetClassification(ctx context.Context, itemID string) (*domain.ClassificationRecord, error)
	UpsertItem(ctx context.Context, item *domain.Item) error
	UpsertClassification(ctx context.Context, itemID string, requiresResponse bool) error

	GetResponse(ctx context.Context, itemID, profileID string) (*domain.ResponseRecord, error)

	// InsertResponse 只在 (ItemID, ProfileID) 不存在时插入，已存在返回 common.ErrAlreadyResponded
	InsertResponse(ctx context.Context, record *domain.ResponseRecord) error

	// ConfirmResponse 把占位记录标记为已发布，令牌不匹配返回 common.ErrReservationLost
	ConfirmResponse(ctx context.Context, itemID, profileID, token string, reply *domain.Reply) error

	// DeleteResponse 撤销仍处于占位状态的记录
	DeleteResponse(ctx context.Context, itemID, profileID, token string) error

	// GetProfile 不存在时返回 common.ErrNotFound
	GetProfile(ctx context.Context, profileID string) (*domain.ResponseProfile, error)
}

// Notifier (信使): 回复发布后推送到群聊 (飞书)
type Notifier interface {
	NotifyReply(ctx context.Context, item *domain.Item, record *domain.ResponseRecord) error
}
