package llm

import (
	"context"
	"fmt"

	"post-responder/internal/common"
	"post-responder/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider 使用 Chat Completions 接口
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) Generate(ctx context.Context, model string, prompt domain.Prompt, jsonMode bool) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.Human))

	params := openai.ChatCompletionNewParams{
		Messages: openai.F(messages),
		Model:    openai.F(openai.ChatModel(model)),
	}
	if jsonMode {
		params.ResponseFormat = openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](openai.ResponseFormatJSONObjectParam{
			Type: openai.F(openai.ResponseFormatJSONObjectTypeJSONObject),
		})
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices: %w", common.ErrUnexpectedShape)
	}
	return completion.Choices[0].Message.Content, nil
}
