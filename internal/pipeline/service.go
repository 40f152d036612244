package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"voice-server/internal/ai"
	"voice-server/internal/audio"
	"voice-server/internal/tts"
	"voice-server/internal/whisper"
)

// Сообщения для клиента
const (
	MsgNoAudio          = "No audio file"
	MsgEmptyAudio       = "Empty audio file"
	MsgAudioTooLarge    = "Audio file too large"
	MsgNoText           = "No text provided"
	MsgNoPrompt         = "No prompt provided"
	MsgUnsupportedVoice = "Unsupported voice"
	MsgInvalidSpeed     = "Speed must be between 0.25 and 4.0"
	MsgTranscription    = "Transcription failed"
	MsgChat             = "Chat completion failed"
	MsgSpeech           = "Speech synthesis failed"
	MsgCancelled        = "Request cancelled"
)

// Имена внешних сервисов для метрик
const (
	serviceTranscription = "transcription"
	serviceChat          = "chat"
	serviceSpeech        = "speech"
)

const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// Converter перекодирует аудио файл в целевой контейнер
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
	Format() string
}

// Recorder принимает метрики конвейера
type Recorder interface {
	RecordUpstream(service string, success bool, seconds float64)
	RecordConversion(success bool, seconds float64)
}

// Deps внешние зависимости конвейера
type Deps struct {
	Workspace   *audio.Workspace
	Converter   Converter
	Transcriber whisper.Transcriber
	Chat        ai.AIClient
	Speech      tts.TTSService
	Metrics     Recorder
	Logger      *zap.Logger
}

// Options параметры конвейера, собираются из конфигурации один раз при старте
type Options struct {
	SystemPrompt      string
	FallbackPrompt    string
	DefaultLanguage   string
	DefaultVoice      string
	DefaultSpeed      float64
	AllowedVoices     []string
	UpstreamTimeout   time.Duration
	ConversionTimeout time.Duration
	Generation        ai.GenerationOptions
	SanitizeSpeech    bool
}

// InboundAudio загруженная запись и ее исходное имя файла
type InboundAudio struct {
	Filename string
	Body     io.Reader
}

// SynthesizedAudio результат синтеза речи
type SynthesizedAudio struct {
	Data        []byte
	ContentType string
}

// RoundTripResult результат полного цикла аудио -> аудио
type RoundTripResult struct {
	Transcript string
	Reply      string
	Audio      *SynthesizedAudio
}

// Service конвейер: конвертация, транскрибация, chat-completion и синтез речи
type Service struct {
	workspace   *audio.Workspace
	converter   Converter
	transcriber whisper.Transcriber
	chat        ai.AIClient
	speech      tts.TTSService
	metrics     Recorder
	opts        Options
	voices      map[string]struct{}
	logger      *zap.Logger
}

// New создает конвейер
func New(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Workspace == nil:
		return nil, errors.New("не задан workspace")
	case deps.Converter == nil:
		return nil, errors.New("не задан конвертер")
	case deps.Transcriber == nil:
		return nil, errors.New("не задан транскрибер")
	case deps.Chat == nil:
		return nil, errors.New("не задан AI клиент")
	case deps.Speech == nil:
		return nil, errors.New("не задан TTS сервис")
	}

	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 60 * time.Second
	}
	if opts.ConversionTimeout <= 0 {
		opts.ConversionTimeout = 30 * time.Second
	}
	if opts.DefaultSpeed == 0 {
		opts.DefaultSpeed = 1.0
	}

	voices := make(map[string]struct{}, len(opts.AllowedVoices))
	for _, v := range opts.AllowedVoices {
		voices[v] = struct{}{}
	}
	if opts.DefaultVoice != "" && len(voices) > 0 {
		if _, ok := voices[opts.DefaultVoice]; !ok {
			return nil, fmt.Errorf("голос по умолчанию %q не входит в список разрешенных", opts.DefaultVoice)
		}
	}

	return &Service{
		workspace:   deps.Workspace,
		converter:   deps.Converter,
		transcriber: deps.Transcriber,
		chat:        deps.Chat,
		speech:      deps.Speech,
		metrics:     deps.Metrics,
		opts:        opts,
		voices:      voices,
		logger:      deps.Logger,
	}, nil
}

// Transcribe конвертирует запись и возвращает распознанный текст.
// Все временные файлы удаляются до возврата.
func (s *Service) Transcribe(ctx context.Context, in InboundAudio, language string) (string, error) {
	const op = "transcribe"

	if in.Body == nil {
		return "", invalidInput(op, MsgNoAudio)
	}

	scope := s.workspace.Scope()
	defer func() {
		if err := scope.Close(); err != nil {
			s.logger.Warn("не удалось удалить временные файлы", zap.Error(err))
		}
	}()

	input, err := scope.Create(filepath.Ext(in.Filename))
	if err != nil {
		return "", internal(op, fmt.Errorf("ошибка создания временного файла: %w", err))
	}
	inputPath := input.Name()

	n, err := io.Copy(input, in.Body)
	if closeErr := input.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", internal(op, fmt.Errorf("ошибка записи временного файла: %w", err))
	}
	if n == 0 {
		return "", invalidInput(op, MsgEmptyAudio)
	}

	outputPath := scope.Path("." + s.converter.Format())
	if err := s.convert(ctx, inputPath, outputPath); err != nil {
		if ctx.Err() != nil {
			return "", s.cancelled(op, ctx.Err())
		}
		return "", conversionFailure(op, err)
	}
	scope.Release(inputPath)

	if language == "" {
		language = s.opts.DefaultLanguage
	}

	text, err := callUpstream(ctx, s, serviceTranscription, func(ctx context.Context) (string, error) {
		return s.transcriber.Transcribe(ctx, outputPath, language)
	})
	if err != nil {
		return "", s.upstreamError(ctx, op, MsgTranscription, err)
	}

	text = strings.TrimSpace(text)
	s.logger.Info("аудио транскрибировано",
		zap.Int64("input_bytes", n),
		zap.String("language", language),
		zap.Int("text_length", len(text)))

	return text, nil
}

// Converse отправляет реплику пользователя в chat-completion.
// Пустой systemPrompt заменяется системным промптом из конфигурации.
func (s *Service) Converse(ctx context.Context, prompt, systemPrompt string) (string, error) {
	const op = "converse"

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", invalidInput(op, MsgNoPrompt)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = s.opts.SystemPrompt
	}

	messages := ai.BuildMessages(systemPrompt, prompt)
	resp, err := callUpstream(ctx, s, serviceChat, func(ctx context.Context) (*ai.Response, error) {
		return s.chat.GenerateResponse(ctx, messages, s.opts.Generation)
	})
	if err != nil {
		return "", s.upstreamError(ctx, op, MsgChat, err)
	}

	if resp == nil {
		return "", upstreamFailure(op, MsgChat, fmt.Errorf("%s вернул пустой ответ", s.chat.GetName()))
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", upstreamFailure(op, MsgChat, fmt.Errorf("%s вернул пустой ответ", s.chat.GetName()))
	}

	s.logger.Info("получен ответ chat-completion",
		zap.String("provider", s.chat.GetName()),
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Int("reply_length", len(reply)))

	return reply, nil
}

// Synthesize озвучивает текст. Пустой voice и нулевая speed заменяются значениями по умолчанию.
func (s *Service) Synthesize(ctx context.Context, text, voice string, speed float64) (*SynthesizedAudio, error) {
	const op = "synthesize"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidInput(op, MsgNoText)
	}

	if voice == "" {
		voice = s.opts.DefaultVoice
	}
	if speed == 0 {
		speed = s.opts.DefaultSpeed
	}
	if speed < MinSpeed || speed > MaxSpeed {
		return nil, invalidInput(op, MsgInvalidSpeed)
	}
	if len(s.voices) > 0 {
		if _, ok := s.voices[voice]; !ok {
			return nil, invalidInput(op, MsgUnsupportedVoice)
		}
	}

	if s.opts.SanitizeSpeech {
		if clean := ai.SanitizeForSpeech(text); clean != "" {
			text = clean
		}
	}

	opts := tts.SynthesizeOptions{Voice: voice, Speed: speed}
	data, err := callUpstream(ctx, s, serviceSpeech, func(ctx context.Context) ([]byte, error) {
		return s.speech.SynthesizeText(ctx, text, opts)
	})
	if err != nil {
		return nil, s.upstreamError(ctx, op, MsgSpeech, err)
	}
	if len(data) == 0 {
		return nil, upstreamFailure(op, MsgSpeech, errors.New("сервис синтеза вернул пустое аудио"))
	}

	return &SynthesizedAudio{Data: data, ContentType: s.speech.ContentType()}, nil
}

// SpeakReply получает ответ chat-completion и озвучивает его
func (s *Service) SpeakReply(ctx context.Context, prompt, systemPrompt, voice string) (string, *SynthesizedAudio, error) {
	reply, err := s.Converse(ctx, prompt, systemPrompt)
	if err != nil {
		return "", nil, err
	}

	synth, err := s.Synthesize(ctx, reply, voice, 0)
	if err != nil {
		return "", nil, err
	}

	return reply, synth, nil
}

// VoiceRoundTrip выполняет полный цикл: транскрибация, ответ, синтез.
// Пустая транскрибация заменяется запасным промптом.
func (s *Service) VoiceRoundTrip(ctx context.Context, in InboundAudio, language string) (*RoundTripResult, error) {
	transcript, err := s.Transcribe(ctx, in, language)
	if err != nil {
		return nil, err
	}

	prompt := transcript
	if prompt == "" {
		s.logger.Info("пустая транскрибация, используем запасной промпт")
		prompt = s.opts.FallbackPrompt
	}

	reply, synth, err := s.SpeakReply(ctx, prompt, "", "")
	if err != nil {
		return nil, err
	}

	return &RoundTripResult{
		Transcript: transcript,
		Reply:      reply,
		Audio:      synth,
	}, nil
}

func (s *Service) convert(ctx context.Context, inputPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConversionTimeout)
	defer cancel()

	start := time.Now()
	err := s.converter.Convert(ctx, inputPath, outputPath)
	s.metrics.RecordConversion(err == nil, time.Since(start).Seconds())
	return err
}

// callUpstream выполняет вызов внешнего сервиса с таймаутом.
// Отмененный запрос не доходит до сервиса.
func callUpstream[T any](ctx context.Context, s *Service, service string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	result, err := call(ctx)
	s.metrics.RecordUpstream(service, err == nil, time.Since(start).Seconds())

	return result, err
}

func (s *Service) upstreamError(ctx context.Context, op, msg string, err error) *Error {
	if ctx.Err() != nil {
		return s.cancelled(op, err)
	}
	return upstreamFailure(op, msg, err)
}

func (s *Service) cancelled(op string, err error) *Error {
	s.logger.Info("запрос отменен", zap.String("op", op), zap.Error(err))
	return upstreamFailure(op, MsgCancelled, err)
}

type nopRecorder struct{}

func (nopRecorder) RecordUpstream(string, bool, float64) {}
func (nopRecorder) RecordConversion(bool, float64) {}
