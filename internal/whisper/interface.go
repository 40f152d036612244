package whisper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Transcriber преобразует аудио файл в текст
type Transcriber interface {
	// Transcribe возвращает распознанный текст. language - необязательная подсказка языка.
	Transcribe(ctx context.Context, filePath, language string) (string, error)
}

// Config содержит настройки выбора бэкенда транскрибации
type Config struct {
	Provider string // openai, whisper
	Model    string
	APIKey   string
	BaseURL  string
	APIURL   string
}

// NewTranscriber создает бэкенд транскрибации на основе конфигурации
func NewTranscriber(cfg Config, logger *zap.Logger) (Transcriber, error) {
	switch cfg.Provider {
	case "openai":
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		clientCfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
		return NewOpenAITranscriber(openai.NewClientWithConfig(clientCfg), cfg.Model, logger), nil
	case "whisper":
		return NewClient(cfg.APIURL, logger), nil
	default:
		return nil, fmt.Errorf("неподдерживаемый STT провайдер: %s. Поддерживаются: 'openai', 'whisper'", cfg.Provider)
	}
}
