package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIService синтезирует речь через OpenAI-совместимый /audio/speech
type OpenAIService struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ TTSService = (*OpenAIService)(nil)

// NewOpenAIService создает TTS сервис поверх готового клиента go-openai
func NewOpenAIService(client *openai.Client, model string, logger *zap.Logger) *OpenAIService {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAIService{
		client: client,
		model:  model,
		logger: logger,
	}
}

// NewOpenAIServiceFromKey создает клиент go-openai и TTS сервис по ключу
func NewOpenAIServiceFromKey(apiKey, baseURL, model string, logger *zap.Logger) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{}
	return NewOpenAIService(openai.NewClientWithConfig(cfg), model, logger)
}

// SynthesizeText преобразует текст в MP3
func (s *OpenAIService) SynthesizeText(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error) {
	s.logger.Info("генерируем аудио через OpenAI TTS",
		zap.String("model", s.model),
		zap.String("voice", opts.Voice),
		zap.Float64("speed", opts.Speed),
		zap.Int("text_length", len(text)))

	start := time.Now()
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(opts.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          opts.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка синтеза речи OpenAI: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аудио данных: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("OpenAI TTS вернул пустое аудио")
	}

	s.logger.Info("аудио успешно сгенерировано",
		zap.Int("audio_size", len(audioData)),
		zap.Duration("duration", time.Since(start)))

	return audioData, nil
}

// ContentType возвращает MIME тип MP3
func (s *OpenAIService) ContentType() string {
	return "audio/mpeg"
}
