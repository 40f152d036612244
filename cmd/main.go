package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-server/internal/ai"
	"voice-server/internal/audio"
	"voice-server/internal/config"
	"voice-server/internal/metrics"
	"voice-server/internal/pipeline"
	"voice-server/internal/scheduler"
	"voice-server/internal/server"
	"voice-server/internal/tts"
	"voice-server/internal/whisper"

	"go.uber.org/zap"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger, err := initLogger(&cfg.App)
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск голосового сервера",
		zap.String("env", cfg.App.Env),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("ai_model", cfg.AI.Model),
		zap.String("stt_provider", cfg.STT.Provider),
		zap.String("tts_provider", cfg.TTS.Provider))

	// Временные файлы и конвертация
	workspace, err := audio.NewWorkspace(cfg.Audio.TempDir, logger)
	if err != nil {
		logger.Fatal("ошибка создания директории временных файлов", zap.Error(err))
	}

	converter := audio.NewFFmpegConverter(cfg.Audio.FFmpegPath, cfg.Audio.TargetFormat, cfg.Audio.SampleRate, logger)
	if err := converter.CheckBinary(); err != nil {
		// Текстовые эндпоинты работают и без FFmpeg
		logger.Warn("FFmpeg недоступен, загрузка аудио будет завершаться ошибкой", zap.Error(err))
	}

	// Инициализация клиента транскрибации
	transcriber, err := whisper.NewTranscriber(whisper.Config{
		Provider: cfg.STT.Provider,
		Model:    cfg.STT.Model,
		APIKey:   cfg.AI.OpenAI.APIKey,
		BaseURL:  cfg.AI.OpenAI.BaseURL,
		APIURL:   cfg.STT.WhisperAPIURL,
	}, logger)
	if err != nil {
		logger.Fatal("ошибка создания клиента транскрибации", zap.Error(err))
	}
	if client, ok := transcriber.(*whisper.Client); ok {
		checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.HealthCheck(checkCtx); err != nil {
			logger.Warn("Whisper API недоступен", zap.String("url", cfg.STT.WhisperAPIURL), zap.Error(err))
		}
		cancel()
	}

	// Инициализация AI клиента
	aiClient, err := ai.NewAIClient(&ai.AIConfig{
		Provider: cfg.AI.Provider,
		Model:    cfg.AI.Model,
		OpenAI: ai.OpenAIConfig{
			APIKey:  cfg.AI.OpenAI.APIKey,
			BaseURL: cfg.AI.OpenAI.BaseURL,
		},
		DeepSeek: ai.DeepSeekConfig{
			APIKey:  cfg.AI.DeepSeek.APIKey,
			BaseURL: cfg.AI.DeepSeek.BaseURL,
		},
		OpenRouter: ai.OpenRouterConfig{
			APIKey:   cfg.AI.OpenRouter.APIKey,
			SiteURL:  cfg.AI.OpenRouter.SiteURL,
			SiteName: cfg.AI.OpenRouter.SiteName,
		},
	}, logger)
	if err != nil {
		logger.Fatal("ошибка создания AI клиента", zap.Error(err))
	}

	// Инициализация TTS сервиса
	ttsService, err := tts.NewTTSService(tts.Config{
		Provider:        cfg.TTS.Provider,
		Model:           cfg.TTS.Model,
		APIKey:          cfg.AI.OpenAI.APIKey,
		BaseURL:         cfg.AI.OpenAI.BaseURL,
		PiperBaseURL:    cfg.TTS.PiperBaseURL,
		AllTalkBaseURL:  cfg.TTS.AllTalkBaseURL,
		AllTalkLanguage: cfg.TTS.AllTalkLanguage,
		FestivalPath:    cfg.TTS.FestivalPath,
		MozillaPath:     cfg.TTS.MozillaPath,
		MozillaModel:    cfg.TTS.MozillaModel,
		TempDir:         workspace.Dir(),
	}, logger)
	if err != nil {
		logger.Fatal("ошибка создания TTS сервиса", zap.Error(err))
	}

	// Инициализация метрик
	metricsSystem := metrics.New(logger)

	svc, err := pipeline.New(pipeline.Deps{
		Workspace:   workspace,
		Converter:   converter,
		Transcriber: transcriber,
		Chat:        aiClient,
		Speech:      ttsService,
		Metrics:     metricsSystem,
		Logger:      logger,
	}, pipelineOptions(cfg))
	if err != nil {
		logger.Fatal("ошибка создания конвейера", zap.Error(err))
	}

	srv := server.New(svc, metricsSystem, server.Options{
		MaxUploadBytes:  cfg.Audio.MaxUploadBytes,
		HeaderEncoding:  cfg.Pipeline.HeaderEncoding,
		HeaderMaxLength: cfg.Pipeline.HeaderMaxLength,
	}, logger)

	// Создание канала для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Уборка временных файлов, оставшихся после аварийных завершений
	taskScheduler := scheduler.NewScheduler(logger)
	taskScheduler.AddJob(scheduler.NewTempSweepJob(workspace, cfg.Audio.TempMaxAge, metricsSystem, logger))
	go taskScheduler.Start(ctx, cfg.Audio.SweepInterval)

	httpServer := &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP сервер запущен", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Ожидание сигнала завершения
	select {
	case <-sigChan:
		logger.Info("получен сигнал завершения, начинаем graceful shutdown")
	case err := <-serverErr:
		logger.Error("ошибка HTTP сервера", zap.Error(err))
	}

	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера", zap.Error(err))
	}

	logger.Info("приложение завершено")
}

// pipelineOptions переводит конфигурацию в параметры конвейера
func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		SystemPrompt:      cfg.AI.SystemPrompt,
		FallbackPrompt:    cfg.Pipeline.FallbackPrompt,
		DefaultLanguage:   cfg.STT.Language,
		DefaultVoice:      cfg.TTS.Voice,
		DefaultSpeed:      cfg.TTS.Speed,
		AllowedVoices:     cfg.TTS.Voices,
		UpstreamTimeout:   cfg.Pipeline.UpstreamTimeout,
		ConversionTimeout: cfg.Audio.ConversionTimeout,
		Generation: ai.GenerationOptions{
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		},
		SanitizeSpeech: cfg.Pipeline.SanitizeSpeech,
	}
}

// initLogger инициализирует логгер
func initLogger(app *config.AppConfig) (*zap.Logger, error) {
	if app.IsProduction() {
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = app.GetLogLevel()
		return zapConfig.Build()
	}

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = app.GetLogLevel()
	zapConfig.OutputPaths = []string{"stdout", "logs/app.log"}
	zapConfig.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	// Создаем директорию для логов если её нет
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	return zapConfig.Build()
}
