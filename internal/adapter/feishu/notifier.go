package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"post-responder/internal/common"
	"post-responder/internal/domain"

	"go.uber.org/zap"
)

// Notifier 实现了 port.Notifier 接口，把每条发布的回复推送到飞书群
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	retryOpts  []common.Option
}

func NewNotifier(webhook string, logger *zap.Logger) *Notifier {
	if webhook == "" {
		logger.Warn("⚠️ 飞书 Webhook 为空，推送功能将无法工作！")
	}
	return &Notifier{
		webhookURL: webhook,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retryOpts: []common.Option{
			common.WithMaxRetries(3),
			common.WithInitialDelay(500 * time.Millisecond),
		},
	}
}

// NotifyReply 发送飞书卡片消息 (Schema 2.0)
func (n *Notifier) NotifyReply(ctx context.Context, item *domain.Item, record *domain.ResponseRecord) error {
	if n.webhookURL == "" {
		return common.NewError(common.ErrCodeNotification, "Webhook URL 为空")
	}

	// 1. 准备标题
	title := fmt.Sprintf("💬 已回复: %s", item.Title)

	// 2. 构造 Markdown 内容
	repliedAt := time.Now()
	if record.RepliedAt != nil {
		repliedAt = *record.RepliedAt
	}
	mdContent := fmt.Sprintf(`**📌 来源:** %s  |  **作者:** %s  |  **发帖时间:** %s
**🧑‍⚕️ 人设:** %s  |  **回复 ID:** %s  |  **回复时间:** %s

**📝 原帖:**
%s

**🤖 回复内容:**
%s
`,
		item.StreamID, item.Author, item.CreatedAt.Format("2006-01-02 15:04"),
		record.ProfileID, record.ReplyID, repliedAt.Format("2006-01-02 15:04"),
		truncate(item.Body, 500),
		record.Content)

	// 3. 构造 Schema 2.0 JSON 结构
	elements := []map[string]interface{}{
		{
			"tag":       "markdown",
			"content":   mdContent,
			"text_size": "normal",
		},
	}
	if item.URL != "" {
		elements = append(elements, map[string]interface{}{
			"tag": "button",
			"text": map[string]interface{}{
				"tag":     "plain_text",
				"content": "🔗 查看原帖",
			},
			"type": "primary",
			"behaviors": []map[string]interface{}{
				{
					"type":        "open_url",
					"default_url": item.URL,
				},
			},
		})
	}

	payload := map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": "green",
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements":  elements,
			},
		},
	}

	// 4. 发送请求 (带重试机制)
	body, err := json.Marshal(payload)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "构造卡片失败", err)
	}
	err = common.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if reqErr != nil {
			return common.Permanent(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, postErr := n.httpClient.Do(req)
		if postErr != nil {
			return postErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("飞书 API 报错: 状态码 %d", resp.StatusCode)
		}
		return nil
	}, n.retryOpts...)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "发送请求失败", err)
	}

	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
