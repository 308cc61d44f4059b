package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"post-responder/internal/adapter/feishu"
	"post-responder/internal/adapter/repository"
	"post-responder/internal/app"
	"post-responder/internal/config"
	"post-responder/internal/domain"
	"post-responder/internal/logging"
	"post-responder/internal/metrics"
	"post-responder/internal/port"
	"post-responder/internal/service"

	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", ".env", ".env 文件路径，不存在时忽略")
	configFile := flag.String("config", "", "可选的 YAML 配置文件")
	once := flag.Bool("once", false, "只执行一轮轮询后退出")
	flag.Parse()

	cfg, err := config.Load(*envFile, *configFile)
	if err != nil {
		log.Fatalf("❌ 配置加载失败: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("❌ 日志初始化失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once); err != nil {
		logger.Fatal("post responder stopped", zap.Error(err))
	}
	logger.Info("👋 shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, once bool) error {
	store, err := repository.NewPostgresRepo(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}()

	source, err := app.NewSource(cfg, logger)
	if err != nil {
		return err
	}

	backend, cleanup, err := app.NewBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	logger.Info("model providers registered", zap.Strings("providers", backend.Providers()))

	var notifier port.Notifier
	if cfg.FeishuWebhook != "" {
		notifier = feishu.NewNotifier(cfg.FeishuWebhook, logger.Named("feishu"))
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, m, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	scheduler := newScheduler(cfg, source, store, backend, notifier, m, logger)

	if once {
		stats, err := scheduler.RunCycle(ctx, cfg.StreamID(), cfg.AssistantModeID)
		logger.Info("single poll cycle finished",
			zap.Int("seen", stats.Seen),
			zap.Int("published", stats.Published),
			zap.Int("failed", stats.Failed))
		return err
	}

	err = scheduler.Run(ctx, cfg.StreamID(), cfg.AssistantModeID)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newScheduler 把各个组件串成流水线
func newScheduler(
	cfg *config.Config,
	source port.ContentSource,
	store port.RecordStore,
	backend port.GenerationBackend,
	notifier port.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *service.Scheduler {
	classifierModel := domain.ModelRef{Provider: cfg.ClassifierProvider, Model: cfg.ClassifierModel}

	pipeline := service.NewPipeline(
		store,
		service.NewClassifier(backend, store, classifierModel, logger.Named("classifier")).WithMetrics(m),
		service.NewContextResolver(source, logger.Named("resolver")),
		service.NewResponseGenerator(backend, cfg.ReplyConstraint),
		service.NewPublisher(source, store, notifier, logger.Named("publisher")),
		logger.Named("pipeline"),
	)

	return service.NewScheduler(source, store, pipeline, service.SchedulerConfig{
		Cooldown:     cfg.Cooldown(),
		IdleInterval: cfg.PollInterval,
		MaxItemAge:   cfg.MaxItemAge,
	}, m, logger.Named("scheduler"))
}

func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
