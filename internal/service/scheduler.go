package service

import (
	"context"
	"time"

	"post-responder/internal/adapter/filter"
	"post-responder/internal/common"
	"post-responder/internal/metrics"
	"post-responder/internal/port"

	"go.uber.org/zap"
)

const (
	// MinCooldown 未配置冷却时间时的下限
	MinCooldown = 10 * time.Second
	// DefaultIdleInterval 两轮轮询之间的间隔
	DefaultIdleInterval = 5 * time.Minute
)

// Sleeper 可被 ctx 取消的等待，测试里可以替换
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext 等待 d 或直到 ctx 被取消
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SchedulerConfig 节奏参数
type SchedulerConfig struct {
	// Cooldown 每次成功发布后的等待，<= 0 时使用 MinCooldown
	Cooldown time.Duration
	// IdleInterval 每轮结束后的等待，<= 0 时使用 DefaultIdleInterval
	IdleInterval time.Duration
	// MaxItemAge 超过该时长的帖子不处理，<= 0 表示不限制
	MaxItemAge time.Duration
}

// CycleStats 一轮轮询的统计
type CycleStats struct {
	Seen             int
	Published        int
	AlreadyResponded int
	NotRequired      int
	Empty            int
	Unrecorded       int
	Failed           int
}

// Scheduler 轮询内容流，逐个把帖子交给流水线
type Scheduler struct {
	source   port.ContentSource
	store    port.RecordStore
	pipeline *Pipeline
	filter   *filter.ItemFilter
	metrics  *metrics.Metrics
	logger   *zap.Logger

	cooldown time.Duration
	idle     time.Duration
	sleep    Sleeper
	now      func() time.Time
}

// NewScheduler m 可以为 nil
func NewScheduler(
	source port.ContentSource,
	store port.RecordStore,
	pipeline *Pipeline,
	cfg SchedulerConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = MinCooldown
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	return &Scheduler{
		source:   source,
		store:    store,
		pipeline: pipeline,
		filter:   filter.NewItemFilter(cfg.MaxItemAge),
		metrics:  m,
		logger:   logger,
		cooldown: cfg.Cooldown,
		idle:     cfg.IdleInterval,
		sleep:    SleepContext,
		now:      time.Now,
	}
}

// WithSleeper 替换等待函数
func (s *Scheduler) WithSleeper(sleep Sleeper) *Scheduler {
	s.sleep = sleep
	return s
}

// Run 一直轮询直到 ctx 被取消，只会返回 ctx 的错误
func (s *Scheduler) Run(ctx context.Context, streamID, profileID string) error {
	s.logger.Info("scheduler started",
		zap.String("stream", streamID),
		zap.String("profile_id", profileID),
		zap.Duration("cooldown", s.cooldown),
		zap.Duration("idle_interval", s.idle))

	for {
		start := s.now()
		stats, err := s.RunCycle(ctx, streamID, profileID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.recordError(err)
			s.logger.Error("poll cycle aborted", zap.String("stream", streamID), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.CycleDuration.Observe(s.now().Sub(start).Seconds())
		}

		s.logger.Info("poll cycle finished, sleeping",
			zap.Int("seen", stats.Seen),
			zap.Int("published", stats.Published),
			zap.Int("failed", stats.Failed),
			zap.Duration("sleep", s.idle),
			zap.Time("until", s.now().Add(s.idle)))

		if err := s.sleep(ctx, s.idle); err != nil {
			return err
		}
		s.logger.Info("waking up")
	}
}

// RunCycle 执行一轮轮询；单个帖子失败只记日志，拉流或读取人设失败会中止本轮
func (s *Scheduler) RunCycle(ctx context.Context, streamID, profileID string) (CycleStats, error) {
	var stats CycleStats

	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return stats, err
	}

	for item, err := range s.filter.Recent(s.source.ListNew(ctx, streamID)) {
		if err != nil {
			return stats, err
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Seen++

		outcome, err := s.pipeline.Process(ctx, item, profile)
		s.record(&stats, outcome)
		if err != nil {
			s.recordError(err)
			s.logger.Error("failed to process post",
				zap.String("item_id", item.ID),
				zap.Stringer("outcome", outcome),
				zap.Error(err))
		}

		// 只要回复发出去了就要冷却，不管是否落库成功
		if outcome.ReplySubmitted() {
			s.logger.Info("sleeping after reply", zap.Duration("cooldown", s.cooldown))
			if err := s.sleep(ctx, s.cooldown); err != nil {
				return stats, err
			}
			s.logger.Info("waking up")
		}
	}

	return stats, nil
}

func (s *Scheduler) record(stats *CycleStats, outcome Outcome) {
	switch outcome {
	case OutcomePublished:
		stats.Published++
	case OutcomeAlreadyResponded:
		stats.AlreadyResponded++
	case OutcomeNotRequired:
		stats.NotRequired++
	case OutcomeEmpty:
		stats.Empty++
	case OutcomeUnrecorded:
		stats.Unrecorded++
	default:
		stats.Failed++
	}

	if s.metrics != nil {
		s.metrics.ItemsProcessed.WithLabelValues(outcome.String()).Inc()
		if outcome.ReplySubmitted() {
			s.metrics.RepliesPosted.Inc()
		}
	}
}

func (s *Scheduler) recordError(err error) {
	if s.metrics == nil {
		return
	}
	code := common.CodeOf(err)
	if code == "" {
		code = common.ErrCodeInternal
	}
	s.metrics.Errors.WithLabelValues(code).Inc()
}
