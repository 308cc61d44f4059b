package common

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryableFunc 一次可以被重试的外部调用
type RetryableFunc func() error

// Config 重试参数
type Config struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	retryIf      func(error) bool
}

// Option 重试的函数式选项
type Option func(*Config)

// WithMaxRetries 最大重试次数 (不含第一次调用)，默认 3
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithInitialDelay 第一次重试前的等待，默认 1 秒
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.initialDelay = d
		}
	}
}

// WithMaxDelay 单次等待上限，默认 30 秒
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithMultiplier 指数退避倍数，默认 2.0
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// WithRetryIf 只有 fn 返回 true 的错误才重试，其它错误立即返回
// 例如 404、参数错误这类重试也不会成功的情况
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) {
		if fn != nil {
			c.retryIf = fn
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		maxRetries:   3,
		initialDelay: 1 * time.Second,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		retryIf:      func(error) bool { return true },
	}
}

// PermanentError 标记不应重试的错误
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent 包装一个错误，让 Do 不再重试它
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Do 以指数退避执行 fn，直到成功、次数用尽或 ctx 被取消
//
// 示例:
//
//	err := common.Do(ctx, func() error {
//	    return client.Call(ctx)
//	}, common.WithMaxRetries(5), common.WithInitialDelay(time.Second))
//
// 被 Permanent 包装的错误、或者不满足 WithRetryIf 的错误会被原样返回 (已去掉 Permanent 包装)
func Do(ctx context.Context, fn RetryableFunc, opts ...Option) error {
	if fn == nil {
		return errors.New("retry: function cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	lastErr := fn()
	if lastErr == nil {
		return nil
	}
	if stop, err := shouldStop(cfg, lastErr); stop {
		return err
	}

	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		default:
		}

		delay := calculateDelay(attempt, cfg.initialDelay, cfg.maxDelay, cfg.multiplier)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff (attempt %d/%d): %w", attempt, cfg.maxRetries, ctx.Err())
		case <-timer.C:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if stop, err := shouldStop(cfg, lastErr); stop {
			return err
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.maxRetries+1, lastErr)
}

func shouldStop(cfg *Config, err error) (bool, error) {
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return true, permanent.Err
	}
	if !cfg.retryIf(err) {
		return true, err
	}
	return false, nil
}

// calculateDelay 第 n 次重试的等待: initialDelay * multiplier^(n-1)，不超过 maxDelay
func calculateDelay(attempt int, initialDelay, maxDelay time.Duration, multiplier float64) time.Duration {
	delay := float64(initialDelay) * math.Pow(multiplier, float64(attempt-1))
	if time.Duration(delay) > maxDelay {
		return maxDelay
	}
	return time.Duration(delay)
}
