package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"post-responder/internal/common"
	"post-responder/internal/domain"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// ModelFactory 按模型名创建 langchaingo 模型
type ModelFactory func(model string) (llms.Model, error)

// LangchainProvider 通过 langchaingo 接入其它服务商，每个模型名只创建一次
type LangchainProvider struct {
	factory ModelFactory
	mu      sync.Mutex
	models  map[string]llms.Model
}

func NewLangchainProvider(factory ModelFactory) *LangchainProvider {
	return &LangchainProvider{factory: factory, models: make(map[string]llms.Model)}
}

// NewAnthropicProvider Claude 系列模型
func NewAnthropicProvider(apiKey string) *LangchainProvider {
	return NewLangchainProvider(func(model string) (llms.Model, error) {
		return anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	})
}

// NewOllamaProvider 本地 Ollama 服务
func NewOllamaProvider(serverURL string) *LangchainProvider {
	return NewLangchainProvider(func(model string) (llms.Model, error) {
		return ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	})
}

// Generate 人设作为 system 消息发送
// langchaingo v0.1.5 没有通用的 JSON 模式，分类时依赖 Router 追加的 JSON 说明
func (p *LangchainProvider) Generate(ctx context.Context, model string, prompt domain.Prompt, _ bool) (string, error) {
	llm, err := p.model(model)
	if err != nil {
		return "", err
	}

	resp, err := llm.GenerateContent(ctx, messages(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices: %w", model, common.ErrUnexpectedShape)
	}
	return resp.Choices[0].Content, nil
}

func (p *LangchainProvider) model(name string) (llms.Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.models[name]; ok {
		return m, nil
	}
	m, err := p.factory(name)
	if err != nil {
		return nil, err
	}
	p.models[name] = m
	return m, nil
}

func messages(prompt domain.Prompt) []llms.MessageContent {
	var msgs []llms.MessageContent
	if strings.TrimSpace(prompt.System) != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, prompt.System))
	}
	return append(msgs, llms.TextParts(schema.ChatMessageTypeHuman, prompt.Human))
}
