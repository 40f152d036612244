package tts

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SynthesizeOptions параметры синтеза одного запроса
type SynthesizeOptions struct {
	Voice string
	Speed float64
}

// TTSService представляет интерфейс для Text-to-Speech сервиса
type TTSService interface {
	// SynthesizeText преобразует текст в аудио
	SynthesizeText(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error)

	// ContentType возвращает MIME тип возвращаемого аудио
	ContentType() string
}

// Config содержит настройки выбора TTS бэкенда
type Config struct {
	Provider        string // openai, piper, alltalk, festival, mozilla
	Model           string
	APIKey          string
	BaseURL         string
	PiperBaseURL    string
	AllTalkBaseURL  string
	AllTalkLanguage string
	FestivalPath    string
	MozillaPath     string
	MozillaModel    string
	// TempDir директория для файлов локальных синтезаторов
	TempDir         string
}

// NewTTSService создает TTS бэкенд на основе конфигурации
func NewTTSService(cfg Config, logger *zap.Logger) (TTSService, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIServiceFromKey(cfg.APIKey, cfg.BaseURL, cfg.Model, logger), nil
	case "piper":
		return NewPiperService(logger, cfg.PiperBaseURL), nil
	case "alltalk":
		return NewAllTalkService(logger, cfg.AllTalkBaseURL, cfg.AllTalkLanguage), nil
	case "festival":
		return NewFestivalService(logger, cfg.FestivalPath, cfg.TempDir), nil
	case "mozilla":
		return NewMozillaService(logger, cfg.MozillaPath, cfg.MozillaModel, cfg.TempDir), nil
	default:
		return nil, fmt.Errorf("неподдерживаемый TTS провайдер: %s. Поддерживаются: 'openai', 'piper', 'alltalk', 'festival', 'mozilla'", cfg.Provider)
	}
}
