// Package app 根据配置组装内容源和模型后端，供 cmd 下的入口共用
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"post-responder/internal/adapter/github"
	"post-responder/internal/adapter/llm"
	"post-responder/internal/adapter/reddit"
	"post-responder/internal/common"
	"post-responder/internal/config"
	"post-responder/internal/domain"
	"post-responder/internal/port"

	"go.uber.org/zap"
)

// NewSource 按 SOURCE 选择内容源
func NewSource(cfg *config.Config, logger *zap.Logger) (port.ContentSource, error) {
	switch cfg.Source {
	case config.SourceReddit:
		return reddit.NewClient(reddit.Config{
			Username:      cfg.RedditUsername,
			Password:      cfg.RedditPassword,
			ClientID:      cfg.RedditClientID,
			ClientSecret:  cfg.RedditClientSecret,
			UserAgent:     cfg.RedditUserAgent,
			RatePerMinute: cfg.SourceRatePerMinute,
		}, logger.Named("reddit")), nil
	case config.SourceGitHub:
		return github.NewFetcher(cfg.GitHubToken, cfg.SourceRatePerMinute, logger.Named("github")), nil
	default:
		return nil, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("unknown SOURCE %q", cfg.Source))
	}
}

// NewBackend 为每个配置了凭据的服务商注册实现
// 返回的 cleanup 负责关闭需要释放的客户端
func NewBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*llm.Router, func(), error) {
	router := llm.NewRouter(cfg.GenerationRatePerMinute, logger.Named("llm"))
	cleanup := func() {}

	if cfg.OpenAIAPIKey != "" {
		router.Register("openai", llm.NewOpenAIProvider(cfg.OpenAIAPIKey))
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, common.WrapError(common.ErrCodeGeneration, "初始化 Gemini 客户端失败", err)
		}
		router.Register("google", gemini)
		cleanup = func() {
			if err := gemini.Close(); err != nil {
				logger.Warn("failed to close gemini client", zap.Error(err))
			}
		}
	}
	if cfg.AnthropicAPIKey != "" {
		router.Register("anthropic", llm.NewAnthropicProvider(cfg.AnthropicAPIKey))
	}
	if cfg.OllamaURL != "" {
		router.Register("ollama", llm.NewOllamaProvider(cfg.OllamaURL))
	}

	if len(router.Providers()) == 0 {
		cleanup()
		return nil, nil, common.NewError(common.ErrCodeInvalidInput,
			"no model provider configured, set OPENAI_API_KEY, GEMINI_API_KEY, ANTHROPIC_API_KEY or OLLAMA_URL")
	}

	// 分类每个帖子都要用，服务商缺失时启动就失败
	classifier := strings.ToLower(cfg.ClassifierProvider)
	if classifier == "" {
		classifier = domain.DefaultProvider
	}
	if !slices.Contains(router.Providers(), classifier) {
		cleanup()
		return nil, nil, common.NewError(common.ErrCodeInvalidInput,
			fmt.Sprintf("CLASSIFIER_PROVIDER %q has no credentials configured", classifier))
	}
	return router, cleanup, nil
}
