package domain

import "fmt"

const (
	DefaultProvider = "openai"
	DefaultModel    = "gpt-4o-mini"
)

// ModelRef 指定一个模型: 服务商 + 模型名
type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// DefaultModelRef 在回复配置没有指定模型时使用
var DefaultModelRef = ModelRef{Provider: DefaultProvider, Model: DefaultModel}

func (m ModelRef) String() string {
	return fmt.Sprintf("%s/%s", m.Provider, m.Model)
}

// IsZero 判断是否未设置
func (m ModelRef) IsZero() bool {
	return m.Provider == "" && m.Model == ""
}

// ResponseProfile 回复人设: 系统提示词 + 可选的模型配置
// 由外部配置库维护，对流水线只读
type ResponseProfile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	Model        *ModelRef `json:"model,omitempty"`
}

// ResolveModel 返回实际使用的模型，未配置时回落到默认模型
func (p *ResponseProfile) ResolveModel() ModelRef {
	if p == nil || p.Model == nil || p.Model.IsZero() {
		return DefaultModelRef
	}
	ref := *p.Model
	if ref.Provider == "" {
		ref.Provider = DefaultProvider
	}
	if ref.Model == "" {
		ref.Model = DefaultModel
	}
	return ref
}
