package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const allTalkDefaultVoice = "female_01.wav"

// AllTalkService предоставляет функциональность Text-to-Speech через AllTalk TTS
type AllTalkService struct {
	logger     *zap.Logger
	baseURL    string
	language   string
	httpClient *http.Client
}

var _ TTSService = (*AllTalkService)(nil)

// NewAllTalkService создает новый AllTalk TTS сервис
func NewAllTalkService(logger *zap.Logger, baseURL, language string) *AllTalkService {
	if language == "" {
		language = "en"
	}
	return &AllTalkService{
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		httpClient: &http.Client{},
	}
}

// SynthesizeText преобразует текст в аудио через AllTalk TTS.
// AllTalk не принимает темп речи, opts.Speed игнорируется.
func (s *AllTalkService) SynthesizeText(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error) {
	voice := opts.Voice
	if voice == "" {
		voice = allTalkDefaultVoice
	}

	s.logger.Info("🎵 генерируем аудио через AllTalk TTS",
		zap.String("voice", voice),
		zap.Int("text_length", len(text)))

	audioURL, err := s.generate(ctx, text, voice)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации аудио: %w", err)
	}

	audioData, err := s.download(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка скачивания аудио: %w", err)
	}

	s.logger.Info("🎵 аудио успешно сгенерировано", zap.Int("audio_size", len(audioData)))

	return audioData, nil
}

// ContentType возвращает MIME тип WAV
func (s *AllTalkService) ContentType() string {
	return "audio/wav"
}

// generate запускает генерацию и возвращает адрес готового файла
func (s *AllTalkService) generate(ctx context.Context, text, voice string) (string, error) {
	data := url.Values{}
	data.Set("text_input", text)
	data.Set("text_filtering", "standard")
	data.Set("character_voice_gen", voice)
	data.Set("narrator_enabled", "false")
	data.Set("text_not_inside", "character")
	data.Set("language", s.language)
	data.Set("output_file_name", fmt.Sprintf("voice_%d", time.Now().UnixNano()))
	data.Set("output_file_timestamp", "true")
	data.Set("autoplay", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/tts-generate", strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("AllTalk TTS вернул ошибку %d: %s", resp.StatusCode, body)
	}

	var response struct {
		Status         string `json:"status"`
		OutputFilePath string `json:"output_file_path"`
		OutputFileURL  string `json:"output_file_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	if response.Status != "generate-success" {
		return "", fmt.Errorf("AllTalk TTS вернул статус: %s", response.Status)
	}
	if response.OutputFileURL == "" {
		return "", fmt.Errorf("AllTalk TTS не вернул адрес файла")
	}

	return s.resolve(response.OutputFileURL)
}

// resolve превращает относительный адрес файла в абсолютный
func (s *AllTalkService) resolve(fileURL string) (string, error) {
	base, err := url.Parse(s.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("некорректный ALLTALK_BASE_URL: %w", err)
	}
	ref, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("некорректный адрес файла %q: %w", fileURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// download скачивает аудио файл по URL
func (s *AllTalkService) download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса для скачивания: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка скачивания аудио файла: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ошибка скачивания аудио: статус %d", resp.StatusCode)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аудио данных: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("AllTalk TTS вернул пустое аудио")
	}

	return audioData, nil
}
