package whisper

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAITranscriber транскрибирует аудио через OpenAI-совместимый /audio/transcriptions
type OpenAITranscriber struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ Transcriber = (*OpenAITranscriber)(nil)

// NewOpenAITranscriber создает транскрибер поверх готового клиента go-openai
func NewOpenAITranscriber(client *openai.Client, model string, logger *zap.Logger) *OpenAITranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Transcribe отправляет файл в API и возвращает текст
func (t *OpenAITranscriber) Transcribe(ctx context.Context, filePath, language string) (string, error) {
	t.logger.Info("отправка запроса на транскрибацию",
		zap.String("file", filePath),
		zap.String("model", t.model),
		zap.String("language", language))

	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filePath,
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("ошибка транскрибации OpenAI: %w", err)
	}

	t.logger.Info("транскрибация завершена",
		zap.String("file", filePath),
		zap.Int("text_length", len(resp.Text)),
		zap.Duration("duration", time.Since(start)))

	return resp.Text, nil
}
