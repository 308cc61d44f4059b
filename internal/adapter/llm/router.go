// Package llm 把模型调用按服务商分发到具体实现
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"post-responder/internal/common"
	"post-responder/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Provider 某个服务商的一次文本生成
// jsonMode 为 true 时尽量让模型只返回 JSON
type Provider interface {
	Generate(ctx context.Context, model string, prompt domain.Prompt, jsonMode bool) (string, error)
}

// Router 实现了 port.GenerationBackend 接口
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	limiter   *rate.Limiter
	retryOpts []common.Option
	logger    *zap.Logger
}

// NewRouter ratePerMinute 限制所有服务商合计的调用频率
func NewRouter(ratePerMinute int, logger *zap.Logger) *Router {
	if ratePerMinute <= 0 {
		ratePerMinute = 20
	}
	return &Router{
		providers: make(map[string]Provider),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), 1),
		retryOpts: []common.Option{
			common.WithMaxRetries(2),
			common.WithInitialDelay(2 * time.Second),
			common.WithRetryIf(isRetryable),
		},
		logger: logger,
	}
}

// Register 注册服务商，名称不区分大小写
func (r *Router) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(name)] = p
}

// Providers 已注册的服务商名称
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Classify 要求模型返回 {"<field>": true|false}，结构不对时返回 common.ErrUnexpectedShape
func (r *Router) Classify(ctx context.Context, model domain.ModelRef, schema domain.BoolSchema, prompt domain.Prompt) (bool, error) {
	prompt.System = strings.TrimSpace(prompt.System + "\n\n" + jsonInstruction(schema))

	var result bool
	err := r.generate(ctx, model, prompt, true, func(raw string) error {
		value, err := parseBool(raw, schema.Field)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return false, err
	}
	return result, nil
}

// Complete 返回去掉首尾空白的模型输出，空输出视为结构错误
func (r *Router) Complete(ctx context.Context, model domain.ModelRef, prompt domain.Prompt) (string, error) {
	var text string
	err := r.generate(ctx, model, prompt, false, func(raw string) error {
		text = strings.TrimSpace(raw)
		if text == "" {
			return fmt.Errorf("empty completion: %w", common.ErrUnexpectedShape)
		}
		return nil
	})
	return text, err
}

func (r *Router) generate(ctx context.Context, model domain.ModelRef, prompt domain.Prompt, jsonMode bool, handle func(string) error) error {
	provider, err := r.provider(model.Provider)
	if err != nil {
		return err
	}

	attempt := 0
	err = common.Do(ctx, func() error {
		attempt++
		if err := r.limiter.Wait(ctx); err != nil {
			return common.Permanent(err)
		}

		start := time.Now()
		raw, err := provider.Generate(ctx, model.Model, prompt, jsonMode)
		if err != nil {
			r.logger.Warn("model call failed",
				zap.String("model", model.String()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		r.logger.Debug("model call finished",
			zap.String("model", model.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("output_len", len(raw)))

		return handle(raw)
	}, r.retryOpts...)
	if err != nil {
		code := common.ErrCodeGeneration
		if errors.Is(err, common.ErrUnexpectedShape) {
			code = common.ErrCodeUnexpectedShape
		}
		return common.WrapError(code, fmt.Sprintf("调用模型 %s 失败", model), err)
	}
	return nil
}

func (r *Router) provider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("model provider %q is not configured", name))
	}
	return p, nil
}

// isRetryable 结构错误重试一般也没用，直接交给流水线下一轮
func isRetryable(err error) bool {
	return !errors.Is(err, common.ErrUnexpectedShape) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
