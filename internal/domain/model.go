package domain

import "time"

// Item 代表内容流中的一个帖子 (Reddit 帖子 / GitHub issue)
// 抓取后不可变
type Item struct {
	ID        string    `json:"id"`
	StreamID  string    `json:"stream_id"` // 例如 subreddit 名称或 "owner/repo"
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`

	// CrossRef 指向被转发的原帖，空字符串表示不是转发
	CrossRef string `json:"cross_ref,omitempty"`
}

// HasCrossRef 判断是否声明了原帖引用
func (i *Item) HasCrossRef() bool {
	return i != nil && i.CrossRef != ""
}

// ClassificationRecord 记录某个帖子"是否需要回复"的判定结果
// 同一个帖子只会被分类一次
type ClassificationRecord struct {
	ItemID           string    `json:"item_id"`
	RequiresResponse bool      `json:"requires_response"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ResponseStatus 回复记录的状态
type ResponseStatus string

const (
	// ResponseReserved 已占位，回复尚未确认发布
	ResponseReserved ResponseStatus = "pending"
	// ResponsePublished 回复已发布并落库
	ResponsePublished ResponseStatus = "published"
)

// ResponseRecord 以 (ItemID, ProfileID) 为联合主键
// 它的存在 (无论状态) 就是"已回复"的唯一依据
type ResponseRecord struct {
	ItemID    string         `json:"item_id"`
	ProfileID string         `json:"profile_id"`
	Status    ResponseStatus `json:"status"`
	Token     string         `json:"token"` // 占位令牌，确认和撤销时校验
	Content   string         `json:"content"`
	ReplyID   string         `json:"reply_id"`
	RepliedAt *time.Time     `json:"replied_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Reply 是内容源返回的已发布回复
type Reply struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
