// Package reddit 以 Reddit 的 OAuth API 作为内容源
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"post-responder/internal/common"
	"post-responder/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL   = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"

	linkPrefix  = "t3_"
	pageSize    = 100
	maxBodySize = 1 << 20
)

var idPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Config 脚本类型应用的凭据，使用密码模式获取令牌
type Config struct {
	Username      string
	Password      string
	ClientID      string
	ClientSecret  string
	UserAgent     string
	RatePerMinute int

	// 测试时替换为本地服务器
	APIURL   string
	TokenURL string
	// MaxPages 单次 ListNew 最多翻几页，默认 10 (Reddit 列表最多 1000 条)
	MaxPages int
}

// Client 实现了 port.ContentSource 接口
type Client struct {
	http      *http.Client
	apiURL    string
	userAgent string
	limiter   *rate.Limiter
	maxPages  int
	retryOpts []common.Option
	logger    *zap.Logger
}

// NewClient 创建 Reddit 客户端，令牌过期时自动重新获取
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 60
	}

	// Reddit 要求所有请求 (包括换取令牌) 都带 User-Agent
	base := &http.Client{
		Timeout:   30 * time.Second,
		Transport: &userAgentTransport{userAgent: cfg.UserAgent, next: http.DefaultTransport},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	ts := oauth2.ReuseTokenSource(nil, &passwordTokenSource{
		ctx:      ctx,
		cfg:      oauthCfg,
		username: cfg.Username,
		password: cfg.Password,
	})

	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		http:      httpClient,
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1),
		maxPages:  cfg.MaxPages,
		retryOpts: []common.Option{
			common.WithMaxRetries(3),
			common.WithInitialDelay(2 * time.Second),
			common.WithRetryIf(isRetryable),
		},
		logger: logger,
	}
}

// ListNew 按从新到旧产出 subreddit 的新帖子
func (c *Client) ListNew(ctx context.Context, subreddit string) iter.Seq2[*domain.Item, error] {
	return func(yield func(*domain.Item, error) bool) {
		after := ""
		for page := 0; page < c.maxPages; page++ {
			query := url.Values{}
			query.Set("limit", fmt.Sprint(pageSize))
			query.Set("raw_json", "1")
			if after != "" {
				query.Set("after", after)
			}

			var result listing
			path := fmt.Sprintf("/r/%s/new", url.PathEscape(subreddit))
			if err := c.getJSON(ctx, path, query, &result); err != nil {
				yield(nil, common.WrapError(common.ErrCodeContentSource,
					fmt.Sprintf("拉取 r/%s 新帖失败", subreddit), err))
				return
			}

			c.logger.Debug("fetched listing page",
				zap.String("subreddit", subreddit),
				zap.Int("page", page),
				zap.Int("count", len(result.Data.Children)))

			for _, child := range result.Data.Children {
				if child.Kind != "" && child.Kind != "t3" {
					continue
				}
				if !yield(toItem(child.Data), nil) {
					return
				}
			}

			if result.Data.After == "" || len(result.Data.Children) == 0 {
				return
			}
			after = result.Data.After
		}
	}
}

// GetItem 按 ID 取帖子，支持 "abc123" 和 "t3_abc123" 两种写法
func (c *Client) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	fullname, err := linkFullname(id)
	if err != nil {
		return nil, err
	}

	var result listing
	query := url.Values{"id": {fullname}, "raw_json": {"1"}}
	if err := c.getJSON(ctx, "/api/info", query, &result); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, common.WrapError(common.ErrCodeContentSource, fmt.Sprintf("获取帖子 %s 失败", id), err)
	}
	if len(result.Data.Children) == 0 {
		return nil, fmt.Errorf("post %s: %w", id, common.ErrNotFound)
	}
	return toItem(result.Data.Children[0].Data), nil
}

// Reply 在帖子下发表评论
// 发帖请求不做重试，避免网络错误时重复评论
func (c *Client) Reply(ctx context.Context, item *domain.Item, text string) (*domain.Reply, error) {
	fullname, err := linkFullname(item.ID)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"api_type": {"json"},
		"thing_id": {fullname},
		"text":     {text},
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/comment", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result commentResponse
	if err := c.do(req, &result); err != nil {
		return nil, common.WrapError(common.ErrCodePublish, fmt.Sprintf("回复帖子 %s 失败", item.ID), err)
	}
	if len(result.JSON.Errors) > 0 {
		return nil, common.NewError(common.ErrCodePublish, fmt.Sprintf("回复帖子 %s 被拒绝: %v", item.ID, result.JSON.Errors))
	}
	if len(result.JSON.Data.Things) == 0 {
		return nil, common.WrapError(common.ErrCodePublish, "回复接口没有返回评论", common.ErrUnexpectedShape)
	}

	comment := result.JSON.Data.Things[0].Data
	createdAt := time.Now()
	if comment.CreatedUTC > 0 {
		createdAt = unixTime(comment.CreatedUTC)
	}
	return &domain.Reply{ID: comment.ID, CreatedAt: createdAt}, nil
}

// getJSON 带限流和重试的 GET
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return common.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return common.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return common.Permanent(err)
		}
		return c.do(req, out)
	}, c.retryOpts...)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", req.URL.Path, common.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return &statusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// statusError 非 200 响应
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("reddit api returned %d: %s", e.StatusCode, e.Body)
}

// isRetryable 限流、服务端错误和网络错误值得重试
func isRetryable(err error) bool {
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// linkFullname 把帖子 ID 规范成 t3_xxx
func linkFullname(id string) (string, error) {
	short := strings.TrimPrefix(strings.TrimSpace(id), linkPrefix)
	if !idPattern.MatchString(short) {
		return "", fmt.Errorf("reddit post id %q: %w", id, common.ErrMalformedReference)
	}
	return linkPrefix + short, nil
}

func toItem(p postData) *domain.Item {
	item := &domain.Item{
		ID:        p.ID,
		StreamID:  p.Subreddit,
		Title:     p.Title,
		Body:      p.Selftext,
		Author:    p.Author,
		CreatedAt: unixTime(p.CreatedUTC),
		CrossRef:  p.CrosspostParent,
	}
	if p.Permalink != "" {
		item.URL = "https://www.reddit.com" + p.Permalink
	}
	return item
}

func unixTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(clone)
}

// passwordTokenSource 每次过期都重新走密码模式，Reddit 的这类令牌没有 refresh_token
type passwordTokenSource struct {
	ctx      context.Context
	cfg      *oauth2.Config
	username string
	password string
}

func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.cfg.PasswordCredentialsToken(s.ctx, s.username, s.password)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeContentSource, "获取 Reddit 令牌失败", err)
	}
	return token, nil
}
