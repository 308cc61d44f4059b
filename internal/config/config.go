// Package config 加载进程配置: .env 文件、可选的 YAML 文件和环境变量
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/subosito/gotenv"

	"post-responder/internal/common"
	"post-responder/internal/service"
)

const (
	SourceReddit = "reddit"
	SourceGitHub = "github"

	// CooldownFloor 未配置 SLEEP_DURATION 时每次发布后的等待
	CooldownFloor = service.MinCooldown

	DefaultPollInterval = 5 * time.Minute
)

// Config 的 koanf 键就是环境变量名的小写形式
type Config struct {
	Source string `koanf:"source"`

	RedditUsername     string `koanf:"reddit_username"`
	RedditPassword     string `koanf:"reddit_password"`
	RedditClientID     string `koanf:"reddit_client_id"`
	RedditClientSecret string `koanf:"reddit_client_secret"`
	RedditUserAgent    string `koanf:"reddit_user_agent"`
	RedditSubreddit    string `koanf:"reddit_subreddit"`

	GitHubToken string `koanf:"github_token"`
	GitHubRepo  string `koanf:"github_repo"`

	AssistantModeID string `koanf:"assistant_mode_id"`

	// SleepDuration 每次发布后的冷却秒数，<= 0 时使用 CooldownFloor
	SleepDuration   int           `koanf:"sleep_duration"`
	PollInterval    time.Duration `koanf:"poll_interval"`
	MaxItemAge      time.Duration `koanf:"max_item_age"`
	ReplyConstraint string        `koanf:"reply_constraint"`

	DatabaseDSN string `koanf:"database_dsn"`

	OpenAIAPIKey    string `koanf:"openai_api_key"`
	GeminiAPIKey    string `koanf:"gemini_api_key"`
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	OllamaURL       string `koanf:"ollama_url"`

	ClassifierProvider string `koanf:"classifier_provider"`
	ClassifierModel    string `koanf:"classifier_model"`

	GenerationRatePerMinute int `koanf:"generation_rate_per_minute"`
	SourceRatePerMinute     int `koanf:"source_rate_per_minute"`

	FeishuWebhook string `koanf:"feishu_webhook"`
	MetricsAddr   string `koanf:"metrics_addr"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// Load 依次加载 .env、YAML 文件和环境变量，后者优先
// envFile 或 configFile 为空、或文件不存在时跳过
func Load(envFile, configFile string) (*Config, error) {
	cfg, err := read(envFile, configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDryRun 同 Load，但不要求数据库和人设配置
func LoadDryRun(envFile, configFile string) (*Config, error) {
	cfg, err := read(envFile, configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateSource(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(envFile, configFile string) (*Config, error) {
	if envFile != "" {
		// gotenv 不会覆盖已经存在的环境变量
		if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	k := koanf.New(".")

	if configFile != "" {
		content, err := os.ReadFile(configFile)
		switch {
		case err == nil:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	if cfg.Source == "" {
		cfg.Source = SourceReddit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReplyConstraint == "" {
		cfg.ReplyConstraint = service.DefaultReplyConstraint
	}
	if cfg.ClassifierProvider == "" {
		cfg.ClassifierProvider = "openai"
	}
	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = "gpt-4o-mini"
	}
	if cfg.GenerationRatePerMinute <= 0 {
		cfg.GenerationRatePerMinute = 20
	}
	if cfg.SourceRatePerMinute <= 0 {
		cfg.SourceRatePerMinute = 60
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
}

// Validate 检查运行流水线需要的全部字段
func (c *Config) Validate() error {
	if err := c.ValidateSource(); err != nil {
		return err
	}
	missing := missingFields(
		c.AssistantModeID, "ASSISTANT_MODE_ID",
		c.DatabaseDSN, "DATABASE_DSN",
	)
	if len(missing) > 0 {
		return common.NewError(common.ErrCodeInvalidInput, "missing required config: "+strings.Join(missing, ", "))
	}
	return nil
}

// ValidateSource 只检查所选内容源需要的字段
func (c *Config) ValidateSource() error {
	var missing []string
	switch c.Source {
	case SourceReddit:
		missing = missingFields(
			c.RedditUsername, "REDDIT_USERNAME",
			c.RedditPassword, "REDDIT_PASSWORD",
			c.RedditClientID, "REDDIT_CLIENT_ID",
			c.RedditClientSecret, "REDDIT_CLIENT_SECRET",
			c.RedditUserAgent, "REDDIT_USER_AGENT",
			c.RedditSubreddit, "REDDIT_SUBREDDIT",
		)
	case SourceGitHub:
		missing = missingFields(
			c.GitHubToken, "GITHUB_TOKEN",
			c.GitHubRepo, "GITHUB_REPO",
		)
		if c.GitHubRepo != "" && len(strings.Split(c.GitHubRepo, "/")) != 2 {
			return common.NewError(common.ErrCodeInvalidInput, "GITHUB_REPO must look like owner/repo")
		}
	default:
		return common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("unknown SOURCE %q", c.Source))
	}

	if len(missing) > 0 {
		return common.NewError(common.ErrCodeInvalidInput, "missing required config: "+strings.Join(missing, ", "))
	}
	return nil
}

// missingFields 参数按 (值, 名称) 成对传入，返回值为空的名称
func missingFields(pairs ...string) []string {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i]) == "" {
			missing = append(missing, pairs[i+1])
		}
	}
	return missing
}

// StreamID 返回所选内容源要监听的流
func (c *Config) StreamID() string {
	if c.Source == SourceGitHub {
		return c.GitHubRepo
	}
	return c.RedditSubreddit
}

// Cooldown 每次成功发布后的等待时间
func (c *Config) Cooldown() time.Duration {
	if c.SleepDuration <= 0 {
		return CooldownFloor
	}
	return time.Duration(c.SleepDuration) * time.Second
}
