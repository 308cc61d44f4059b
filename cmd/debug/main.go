package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"post-responder/internal/adapter/filter"
	"post-responder/internal/adapter/memory"
	"post-responder/internal/adapter/repository"
	"post-responder/internal/app"
	"post-responder/internal/config"
	"post-responder/internal/domain"
	"post-responder/internal/logging"
	"post-responder/internal/service"
)

// 试运行: 抓取最新的几个帖子，分类并生成回复，但不发布、不写数据库
func main() {
	envFile := flag.String("env", ".env", ".env 文件路径")
	configFile := flag.String("config", "", "可选的 YAML 配置文件")
	limit := flag.Int("n", 3, "最多处理多少个帖子")
	systemPrompt := flag.String("system", "You are a helpful community member.", "未连接数据库时使用的人设提示词")
	flag.Parse()

	cfg, err := config.LoadDryRun(*envFile, *configFile)
	if err != nil {
		log.Fatalf("❌ 配置加载失败: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		log.Fatalf("❌ 日志初始化失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	source, err := app.NewSource(cfg, logger)
	if err != nil {
		log.Fatalf("❌ 内容源初始化失败: %v", err)
	}
	backend, cleanup, err := app.NewBackend(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("❌ 模型初始化失败: %v", err)
	}
	defer cleanup()

	profile := loadProfile(ctx, cfg, *systemPrompt)
	fmt.Printf("🔍 调试模式: 人设 %q, 模型 %s\n", profile.ID, profile.ResolveModel())

	// 分类结果只写进内存
	store := memory.NewStore(profile)
	classifier := service.NewClassifier(backend, store,
		domain.ModelRef{Provider: cfg.ClassifierProvider, Model: cfg.ClassifierModel}, logger)
	resolver := service.NewContextResolver(source, logger)
	generator := service.NewResponseGenerator(backend, cfg.ReplyConstraint)
	itemFilter := filter.NewItemFilter(cfg.MaxItemAge)

	fmt.Printf("📥 正在抓取 %s 的最新帖子...\n", cfg.StreamID())
	count := 0
	for item, err := range itemFilter.Recent(source.ListNew(ctx, cfg.StreamID())) {
		if err != nil {
			log.Printf("❌ 抓取失败: %v", err)
			return
		}
		if count >= *limit {
			break
		}
		count++

		fmt.Printf("\n#%d [%s] %s\n", count, item.ID, item.Title)
		if !filter.HasContent(item) {
			fmt.Println("    ⏭️ 没有正文，跳过")
			continue
		}

		required, err := classifier.RequiresResponse(ctx, item)
		if err != nil {
			log.Printf("    ⚠️ 分类失败: %v", err)
			continue
		}
		fmt.Printf("    需要回复: %v\n", required)
		if !required {
			continue
		}

		self, parent, err := resolver.Resolve(ctx, item)
		if err != nil {
			log.Printf("    ⚠️ 重新获取帖子失败: %v", err)
			continue
		}
		fmt.Printf("    原帖: %s\n", parent.Kind)

		text, err := generator.Generate(ctx, profile, self, parent)
		if err != nil {
			log.Printf("    ⚠️ 生成失败: %v", err)
			continue
		}
		fmt.Printf("    回复草稿: %s\n", text)
	}

	if count == 0 {
		fmt.Println("❌ 没有获取到任何帖子")
	}
}

// loadProfile 配置了数据库时从库里取人设，否则用命令行给的提示词
func loadProfile(ctx context.Context, cfg *config.Config, systemPrompt string) *domain.ResponseProfile {
	if cfg.DatabaseDSN == "" || cfg.AssistantModeID == "" {
		return &domain.ResponseProfile{ID: "dry-run", Name: "dry-run", SystemPrompt: systemPrompt}
	}

	repo, err := repository.NewPostgresRepo(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("❌ DB 初始化失败: %v", err)
	}
	defer func() { _ = repo.Close() }()

	profile, err := repo.GetProfile(ctx, cfg.AssistantModeID)
	if err != nil {
		log.Fatalf("❌ 读取人设 %s 失败: %v", cfg.AssistantModeID, err)
	}
	return profile
}
