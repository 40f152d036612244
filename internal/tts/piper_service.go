package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// PiperService предоставляет функциональность Text-to-Speech через Piper TTS API
type PiperService struct {
	logger  *zap.Logger
	baseURL string
	client  *http.Client
}

var _ TTSService = (*PiperService)(nil)

// NewPiperService создает новый Piper TTS сервис
func NewPiperService(logger *zap.Logger, baseURL string) *PiperService {
	return &PiperService{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// SynthesizeText преобразует текст в аудио через Piper TTS
func (s *PiperService) SynthesizeText(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error) {
	s.logger.Info("🎵 генерируем аудио через Piper TTS",
		zap.String("voice", opts.Voice),
		zap.Int("text_length", len(text)))

	audioData, err := s.generateAudio(ctx, text, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации аудио: %w", err)
	}

	s.logger.Info("🎵 аудио успешно сгенерировано",
		zap.Int("audio_size", len(audioData)))

	return audioData, nil
}

// ContentType возвращает MIME тип WAV
func (s *PiperService) ContentType() string {
	return "audio/wav"
}

// generateAudio отправляет запрос к Piper TTS API и получает аудио
func (s *PiperService) generateAudio(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error) {
	url := s.baseURL + "/synthesize-raw"

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	_ = writer.WriteField("text", text)
	if opts.Voice != "" {
		_ = writer.WriteField("voice", opts.Voice)
	}
	if opts.Speed > 0 {
		// Piper задает темп через length_scale: больше значение, медленнее речь
		_ = writer.WriteField("length_scale", strconv.FormatFloat(1/opts.Speed, 'f', 3, 64))
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия формы: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	s.logger.Debug("🎵 отправляем запрос к Piper TTS", zap.String("url", url))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("неожиданный статус от Piper TTS: %d, тело: %s", resp.StatusCode, respBody)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аудио данных: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("Piper TTS вернул пустое аудио")
	}

	return audioData, nil
}
