package service

import (
	"context"
	"fmt"
	"strings"

	"post-responder/internal/common"
	"post-responder/internal/domain"
	"post-responder/internal/port"
)

// ResponseGenerator 按人设和上下文生成回复
type ResponseGenerator struct {
	backend    port.GenerationBackend
	constraint string
}

// NewResponseGenerator constraint 为空时使用 DefaultReplyConstraint
func NewResponseGenerator(backend port.GenerationBackend, constraint string) *ResponseGenerator {
	if strings.TrimSpace(constraint) == "" {
		constraint = DefaultReplyConstraint
	}
	return &ResponseGenerator{backend: backend, constraint: constraint}
}

// BuildPrompt 有原帖时使用两段式模板，否则只包含帖子本身
func (g *ResponseGenerator) BuildPrompt(profile *domain.ResponseProfile, self *domain.Item, parent domain.ParentResult) (domain.Prompt, error) {
	values := map[string]any{
		"title": self.Title,
		"body":  self.Body,
	}
	tmpl := singleTemplate
	if p := parent.Parent(); p != nil {
		values["parent_title"] = p.Title
		values["parent_body"] = p.Body
		tmpl = withParentTemplate
	}

	rendered, err := tmpl.Format(values)
	if err != nil {
		return domain.Prompt{}, common.WrapError(common.ErrCodeInternal, "渲染回复模板失败", err)
	}

	return domain.Prompt{
		System: profile.SystemPrompt,
		Human:  g.constraint + "\n\n" + rendered,
	}, nil
}

// Generate 返回模型原始输出，空白输出视为结构错误
func (g *ResponseGenerator) Generate(ctx context.Context, profile *domain.ResponseProfile, self *domain.Item, parent domain.ParentResult) (string, error) {
	prompt, err := g.BuildPrompt(profile, self, parent)
	if err != nil {
		return "", err
	}

	text, err := g.backend.Complete(ctx, profile.ResolveModel(), prompt)
	if err != nil {
		return "", fmt.Errorf("generate reply for %s: %w", self.ID, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", common.WrapError(common.ErrCodeUnexpectedShape,
			fmt.Sprintf("模型对 %s 返回了空回复", self.ID), common.ErrUnexpectedShape)
	}
	return text, nil
}
