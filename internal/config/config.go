package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// DefaultSystemPrompt используется, если SYSTEM_PROMPT и SYSTEM_PROMPT_FILE не заданы
const DefaultSystemPrompt = `You are a friendly voice assistant.
Your answers are read aloud, so keep them short and conversational.
Do not use markdown, lists or emoji.`

// DefaultFallbackPrompt подставляется вместо пустой транскрибации
const DefaultFallbackPrompt = "I could not hear anything. Please ask me to repeat myself."

// Config содержит все конфигурационные параметры приложения
type Config struct {
	AI       AIConfig
	STT      STTConfig
	TTS      TTSConfig
	Audio    AudioConfig
	Pipeline PipelineConfig
	Server   ServerConfig
	App      AppConfig
}

// AIConfig содержит настройки chat-completion провайдеров
type AIConfig struct {
	Provider     string
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	OpenAI       OpenAIConfig
	DeepSeek     DeepSeekConfig
	OpenRouter   OpenRouterConfig
}

// OpenAIConfig общий ключ для всех OpenAI-совместимых вызовов
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
}

type OpenRouterConfig struct {
	APIKey   string
	SiteURL  string
	SiteName string
}

// STTConfig содержит настройки транскрибации
type STTConfig struct {
	Provider      string
	Model         string
	Language      string
	WhisperAPIURL string
}

// TTSConfig содержит настройки синтеза речи
type TTSConfig struct {
	Provider        string
	Model           string
	Voice           string
	Speed           float64
	Voices          []string
	PiperBaseURL    string
	AllTalkBaseURL  string
	AllTalkLanguage string
	FestivalPath    string
	MozillaPath     string
	MozillaModel    string
}

// AudioConfig содержит настройки конвертации и временных файлов
type AudioConfig struct {
	FFmpegPath        string
	TempDir           string
	TargetFormat      string
	SampleRate        int
	MaxUploadBytes    int64
	SweepInterval     time.Duration
	TempMaxAge        time.Duration
	ConversionTimeout time.Duration
}

// PipelineConfig содержит параметры конвейера запроса
type PipelineConfig struct {
	UpstreamTimeout time.Duration
	FallbackPrompt  string
	HeaderEncoding  string
	HeaderMaxLength int
	SanitizeSpeech  bool
}

type ServerConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AppConfig struct {
	Env      string
	LogLevel string
	Port     int
}

// Load загружает конфигурацию из переменных окружения и .env и проверяет ее
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

// Read загружает конфигурацию без проверки ключей провайдеров.
// Используется утилитами, которым не нужны внешние API.
func Read() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// AI
	cfg.AI.Provider = getEnvDefault("AI_PROVIDER", "openai")
	cfg.AI.Model = getEnvDefault("AI_MODEL", "gpt-4o-mini")
	cfg.AI.MaxTokens = getEnvIntDefault("AI_MAX_TOKENS", 500)
	cfg.AI.Temperature = getEnvFloatDefault("AI_TEMPERATURE", 0.7)
	cfg.AI.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AI.OpenAI.BaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.AI.DeepSeek.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	cfg.AI.DeepSeek.BaseURL = getEnvDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1")
	cfg.AI.OpenRouter.APIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.AI.OpenRouter.SiteURL = os.Getenv("OPENROUTER_SITE_URL")
	cfg.AI.OpenRouter.SiteName = getEnvDefault("OPENROUTER_SITE_NAME", "Voice Server")

	prompt, err := loadSystemPrompt()
	if err != nil {
		return nil, err
	}
	cfg.AI.SystemPrompt = prompt

	// STT
	cfg.STT.Provider = getEnvDefault("STT_PROVIDER", "openai")
	cfg.STT.Model = getEnvDefault("STT_MODEL", "whisper-1")
	cfg.STT.Language = os.Getenv("STT_LANGUAGE")
	cfg.STT.WhisperAPIURL = getEnvDefault("WHISPER_API_URL", "http://whisper:9000")

	// TTS
	cfg.TTS.Provider = getEnvDefault("TTS_PROVIDER", "openai")
	cfg.TTS.Model = getEnvDefault("TTS_MODEL", "tts-1")
	voice, voices := defaultVoices(cfg.TTS.Provider)
	cfg.TTS.Voice = getEnvDefault("TTS_VOICE", voice)
	cfg.TTS.Speed = getEnvFloatDefault("TTS_SPEED", 1.0)
	cfg.TTS.Voices = getEnvListDefault("TTS_VOICES", voices)
	cfg.TTS.PiperBaseURL = getEnvDefault("PIPER_BASE_URL", "http://piper:5000")
	cfg.TTS.AllTalkBaseURL = getEnvDefault("ALLTALK_BASE_URL", "http://alltalk:7851")
	cfg.TTS.AllTalkLanguage = getEnvDefault("ALLTALK_LANGUAGE", "en")
	cfg.TTS.FestivalPath = getEnvDefault("FESTIVAL_PATH", "text2wave")
	cfg.TTS.MozillaPath = getEnvDefault("MOZILLA_TTS_PATH", "tts")
	cfg.TTS.MozillaModel = getEnvDefault("MOZILLA_TTS_MODEL", "tts_models/en/ljspeech/tacotron2-DDC")

	// Audio
	cfg.Audio.FFmpegPath = getEnvDefault("FFMPEG_PATH", "ffmpeg")
	cfg.Audio.TempDir = getEnvDefault("AUDIO_TEMP_DIR", filepath.Join(os.TempDir(), "voice-server"))
	cfg.Audio.TargetFormat = strings.ToLower(getEnvDefault("AUDIO_TARGET_FORMAT", "wav"))
	cfg.Audio.SampleRate = getEnvIntDefault("AUDIO_SAMPLE_RATE", 16000)
	cfg.Audio.MaxUploadBytes = int64(getEnvIntDefault("MAX_UPLOAD_BYTES", 25<<20))
	cfg.Audio.SweepInterval = getEnvDurationDefault("TEMP_SWEEP_INTERVAL", 10*time.Minute)
	cfg.Audio.TempMaxAge = getEnvDurationDefault("TEMP_MAX_AGE", time.Hour)
	cfg.Audio.ConversionTimeout = getEnvDurationDefault("CONVERSION_TIMEOUT", 30*time.Second)

	// Pipeline
	cfg.Pipeline.UpstreamTimeout = getEnvDurationDefault("UPSTREAM_TIMEOUT", 60*time.Second)
	cfg.Pipeline.FallbackPrompt = getEnvDefault("FALLBACK_PROMPT", DefaultFallbackPrompt)
	cfg.Pipeline.HeaderEncoding = strings.ToLower(getEnvDefault("HEADER_ENCODING", "base64"))
	cfg.Pipeline.HeaderMaxLength = getEnvIntDefault("HEADER_MAX_LENGTH", 1000)
	cfg.Pipeline.SanitizeSpeech = getEnvBoolDefault("SANITIZE_SPEECH", true)

	// Server
	cfg.Server.ReadTimeout = getEnvDurationDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	cfg.Server.WriteTimeout = getEnvDurationDefault("SERVER_WRITE_TIMEOUT", 300*time.Second)

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.Port = getEnvIntDefault("APP_PORT", 5000)

	return cfg, nil
}

// defaultVoices возвращает голос по умолчанию и список разрешенных голосов для провайдера.
// Пустой список означает, что голос проверяет сам бэкенд.
func defaultVoices(provider string) (string, []string) {
	switch provider {
	case "openai":
		return "onyx", []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}
	case "alltalk":
		return "female_01.wav", nil
	case "festival":
		return "voice_kal_diphone", nil
	default:
		// piper и mozilla используют голос модели
		return "", nil
	}
}

// RequestBudget возвращает наибольшее время обработки одного запроса:
// конвертация и три последовательных вызова внешних сервисов.
func (c *Config) RequestBudget() time.Duration {
	return c.Audio.ConversionTimeout + 3*c.Pipeline.UpstreamTimeout
}

// loadSystemPrompt читает системный промпт: файл имеет приоритет над переменной
func loadSystemPrompt() (string, error) {
	if path := os.Getenv("SYSTEM_PROMPT_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("ошибка чтения SYSTEM_PROMPT_FILE: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return getEnvDefault("SYSTEM_PROMPT", DefaultSystemPrompt), nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvListDefault(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	switch config.AI.Provider {
	case "openai":
		if config.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY не установлен")
		}
	case "deepseek":
		if config.AI.DeepSeek.APIKey == "" {
			return fmt.Errorf("DEEPSEEK_API_KEY не установлен")
		}
	case "openrouter":
		if config.AI.OpenRouter.APIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY не установлен")
		}
	default:
		return fmt.Errorf("поддерживаются только AI_PROVIDER: openai, deepseek, openrouter")
	}

	switch config.STT.Provider {
	case "openai":
		if config.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY не установлен (нужен для STT_PROVIDER=openai)")
		}
	case "whisper":
		if config.STT.WhisperAPIURL == "" {
			return fmt.Errorf("WHISPER_API_URL не установлен")
		}
	default:
		return fmt.Errorf("поддерживаются только STT_PROVIDER: openai, whisper")
	}

	switch config.TTS.Provider {
	case "openai":
		if config.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY не установлен (нужен для TTS_PROVIDER=openai)")
		}
	case "piper":
		if config.TTS.PiperBaseURL == "" {
			return fmt.Errorf("PIPER_BASE_URL не установлен")
		}
	case "alltalk":
		if config.TTS.AllTalkBaseURL == "" {
			return fmt.Errorf("ALLTALK_BASE_URL не установлен")
		}
	case "festival":
		if config.TTS.FestivalPath == "" {
			return fmt.Errorf("FESTIVAL_PATH не установлен")
		}
	case "mozilla":
		if config.TTS.MozillaPath == "" || config.TTS.MozillaModel == "" {
			return fmt.Errorf("MOZILLA_TTS_PATH и MOZILLA_TTS_MODEL должны быть установлены")
		}
	default:
		return fmt.Errorf("поддерживаются только TTS_PROVIDER: openai, piper, alltalk, festival, mozilla")
	}

	if config.TTS.Speed < 0.25 || config.TTS.Speed > 4.0 {
		return fmt.Errorf("TTS_SPEED должен быть в диапазоне 0.25..4.0")
	}
	if config.Audio.TargetFormat != "wav" && config.Audio.TargetFormat != "mp3" {
		return fmt.Errorf("поддерживаются только AUDIO_TARGET_FORMAT: wav, mp3")
	}
	if config.Audio.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES должен быть положительным")
	}
	if config.Audio.SweepInterval <= 0 {
		return fmt.Errorf("TEMP_SWEEP_INTERVAL должен быть положительным")
	}
	// Файл запроса живет не дольше конвертации и вызова транскрибации
	if minAge := config.Audio.ConversionTimeout + config.Pipeline.UpstreamTimeout; config.Audio.TempMaxAge <= minAge {
		return fmt.Errorf("TEMP_MAX_AGE должен быть больше %v (CONVERSION_TIMEOUT + UPSTREAM_TIMEOUT)", minAge)
	}
	if budget := config.RequestBudget(); config.Server.WriteTimeout > 0 && config.Server.WriteTimeout < budget {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT должен быть не меньше %v (CONVERSION_TIMEOUT + 3 * UPSTREAM_TIMEOUT)", budget)
	}
	if config.Pipeline.HeaderEncoding != "plain" && config.Pipeline.HeaderEncoding != "base64" {
		return fmt.Errorf("поддерживаются только HEADER_ENCODING: plain, base64")
	}

	return nil
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

// Addr возвращает адрес для HTTP сервера
func (c *AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
