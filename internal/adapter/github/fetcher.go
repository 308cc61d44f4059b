// Package github 以一个仓库的 issues 作为内容源
package github

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"post-responder/internal/common"
	"post-responder/internal/domain"

	"github.com/google/go-github/v53/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var duplicatePattern = regexp.MustCompile(`(?i)duplicate of #(\d+)`)

// Fetcher 实现了 port.ContentSource 接口
// 帖子 ID 形如 "owner/repo#123"，流 ID 形如 "owner/repo"
type Fetcher struct {
	client    *github.Client
	limiter   *rate.Limiter
	maxPages  int
	retryOpts []common.Option
	logger    *zap.Logger
}

// NewFetcher 初始化 GitHub 客户端
// token 为空时匿名访问 (限制 60次/小时，且无法发表评论)
func NewFetcher(token string, ratePerMinute int, logger *zap.Logger) *Fetcher {
	var client *github.Client

	if token == "" {
		client = github.NewClient(nil)
	} else {
		ctx := context.Background()
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(ctx, ts)
		client = github.NewClient(tc)
	}

	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}

	return &Fetcher{
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), 1),
		maxPages: 3,
		retryOpts: []common.Option{
			common.WithMaxRetries(3),
			common.WithInitialDelay(time.Second),
			common.WithRetryIf(isRetryable),
		},
		logger: logger,
	}
}

// ListNew 按创建时间倒序产出仓库里打开的 issue，跳过 pull request
func (f *Fetcher) ListNew(ctx context.Context, streamID string) iter.Seq2[*domain.Item, error] {
	return func(yield func(*domain.Item, error) bool) {
		owner, repo, err := splitRepo(streamID)
		if err != nil {
			yield(nil, err)
			return
		}

		opts := &github.IssueListByRepoOptions{
			State:       "open",
			Sort:        "created",
			Direction:   "desc",
			ListOptions: github.ListOptions{PerPage: 100},
		}

		for page := 0; page < f.maxPages; page++ {
			var issues []*github.Issue
			var resp *github.Response
			err := f.call(ctx, func() error {
				var apiErr error
				issues, resp, apiErr = f.client.Issues.ListByRepo(ctx, owner, repo, opts)
				return apiErr
			})
			if err != nil {
				yield(nil, common.WrapError(common.ErrCodeContentSource,
					fmt.Sprintf("GitHub API 调用失败: 拉取 %s 的 issues", streamID), err))
				return
			}

			f.logger.Debug("fetched issues page",
				zap.String("repo", streamID),
				zap.Int("page", page),
				zap.Int("count", len(issues)))

			for _, issue := range issues {
				if issue.IsPullRequest() {
					continue
				}
				if !yield(toItem(owner, repo, issue), nil) {
					return
				}
			}

			if resp == nil || resp.NextPage == 0 {
				return
			}
			opts.Page = resp.NextPage
		}
	}
}

// GetItem 按 "owner/repo#N" 获取 issue
func (f *Fetcher) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	owner, repo, number, err := parseItemID(id)
	if err != nil {
		return nil, err
	}

	var issue *github.Issue
	err = f.call(ctx, func() error {
		var apiErr error
		issue, _, apiErr = f.client.Issues.Get(ctx, owner, repo, number)
		return apiErr
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("issue %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeContentSource, fmt.Sprintf("GitHub API 调用失败: 获取 %s", id), err)
	}
	return toItem(owner, repo, issue), nil
}

// Reply 在 issue 下发表评论，不重试
func (f *Fetcher) Reply(ctx context.Context, item *domain.Item, text string) (*domain.Reply, error) {
	owner, repo, number, err := parseItemID(item.ID)
	if err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	comment, _, err := f.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.String(text),
	})
	if err != nil {
		return nil, common.WrapError(common.ErrCodePublish, fmt.Sprintf("GitHub API 调用失败: 评论 %s", item.ID), err)
	}

	createdAt := comment.GetCreatedAt().Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &domain.Reply{ID: strconv.FormatInt(comment.GetID(), 10), CreatedAt: createdAt}, nil
}

func (f *Fetcher) call(ctx context.Context, fn func() error) error {
	return common.Do(ctx, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return common.Permanent(err)
		}
		return fn()
	}, f.retryOpts...)
}

// isRetryable 除了限流以外的 4xx 都不重试
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= 500
	}
	return true
}

func isNotFound(err error) bool {
	var respErr *github.ErrorResponse
	return errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound
}

func splitRepo(streamID string) (string, string, error) {
	parts := strings.Split(streamID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository %q: %w", streamID, common.ErrMalformedReference)
	}
	return parts[0], parts[1], nil
}

func parseItemID(id string) (string, string, int, error) {
	repoPart, numPart, ok := strings.Cut(id, "#")
	if !ok {
		return "", "", 0, fmt.Errorf("issue id %q: %w", id, common.ErrMalformedReference)
	}
	owner, repo, err := splitRepo(repoPart)
	if err != nil {
		return "", "", 0, err
	}
	number, err := strconv.Atoi(numPart)
	if err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("issue id %q: %w", id, common.ErrMalformedReference)
	}
	return owner, repo, number, nil
}

func itemID(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

// toItem 正文里的 "Duplicate of #N" 视为指向原帖
func toItem(owner, repo string, issue *github.Issue) *domain.Item {
	item := &domain.Item{
		ID:        itemID(owner, repo, issue.GetNumber()),
		StreamID:  owner + "/" + repo,
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		Author:    issue.GetUser().GetLogin(),
		URL:       issue.GetHTMLURL(),
		CreatedAt: issue.GetCreatedAt().Time,
	}
	if m := duplicatePattern.FindStringSubmatch(item.Body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n != issue.GetNumber() {
			item.CrossRef = itemID(owner, repo, n)
		}
	}
	return item
}
