package domain

// Prompt 是渲染完成、可以直接发给模型的一轮对话
type Prompt struct {
	System string `json:"system"`
	Human  string `json:"human"`
}

// BoolSchema 描述分类请求期望模型返回的单个布尔字段
type BoolSchema struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

// ParentKind 原帖解析结果的类别
type ParentKind int

const (
	// NoParent 不是转发，或引用无效
	NoParent ParentKind = iota
	// HasParent 成功取到原帖
	HasParent
	// ParentFetchFailed 是转发，但取原帖失败
	ParentFetchFailed
)

func (k ParentKind) String() string {
	switch k {
	case HasParent:
		return "has_parent"
	case ParentFetchFailed:
		return "fetch_failed"
	default:
		return "no_parent"
	}
}

// ParentResult 原帖解析结果，显式区分三种情况
type ParentResult struct {
	Kind ParentKind
	Item *Item
	Err  error
}

func WithParent(item *Item) ParentResult {
	return ParentResult{Kind: HasParent, Item: item}
}

func WithoutParent() ParentResult {
	return ParentResult{Kind: NoParent}
}

func ParentFailed(err error) ParentResult {
	return ParentResult{Kind: ParentFetchFailed, Err: err}
}

// Parent 只有在 HasParent 时返回原帖，否则返回 nil
func (r ParentResult) Parent() *Item {
	if r.Kind != HasParent {
		return nil
	}
	return r.Item
}
