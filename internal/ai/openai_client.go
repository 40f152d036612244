package ai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient работает с любым OpenAI-совместимым chat-completion API
// (OpenAI, DeepSeek, OpenRouter отличаются только BaseURL и заголовками)
type OpenAIClient struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

var _ AIClient = (*OpenAIClient)(nil)

// NewOpenAIClient создает клиент поверх готового клиента go-openai
func NewOpenAIClient(client *openai.Client, model, provider string, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		client:   client,
		model:    model,
		provider: provider,
		logger:   logger,
	}
}

// GenerateResponse генерирует ответ через /chat/completions
func (c *OpenAIClient) GenerateResponse(ctx context.Context, messages []Message, options GenerationOptions) (*Response, error) {
	c.logger.Debug("отправляем запрос в chat-completion",
		zap.String("provider", c.provider),
		zap.String("model", c.model),
		zap.Int("messages_count", len(messages)),
		zap.Float64("temperature", options.Temperature),
		zap.Int("max_tokens", options.MaxTokens))

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		MaxTokens:   options.MaxTokens,
		Temperature: float32(options.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к %s: %w", c.provider, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("нет вариантов ответа от %s", c.provider)
	}

	choice := resp.Choices[0]

	c.logger.Debug("получен ответ от chat-completion",
		zap.String("provider", c.provider),
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Duration("duration", time.Since(start)))

	return &Response{
		Content: choice.Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(choice.FinishReason),
		Provider:     c.provider,
	}, nil
}

// GetName возвращает название провайдера
func (c *OpenAIClient) GetName() string {
	return c.provider
}
