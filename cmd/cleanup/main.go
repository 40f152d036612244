package main

import (
	"flag"
	"log"
	"time"

	"voice-server/internal/audio"
	"voice-server/internal/config"

	"go.uber.org/zap"
)

func main() {
	var (
		dir    = flag.String("dir", "", "Директория временных файлов (по умолчанию AUDIO_TEMP_DIR)")
		maxAge = flag.Duration("max-age", 0, "Удалять файлы старше (по умолчанию TEMP_MAX_AGE)")
		dryRun = flag.Bool("dry-run", false, "Показать что будет удалено без фактического удаления")
	)
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	// Ключи провайдеров утилите не нужны, поэтому конфигурация без валидации
	cfg, err := config.Read()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	if *dir == "" {
		*dir = cfg.Audio.TempDir
	}
	if *maxAge <= 0 {
		*maxAge = cfg.Audio.TempMaxAge
	}

	workspace, err := audio.NewWorkspace(*dir, logger)
	if err != nil {
		logger.Fatal("Ошибка открытия директории временных файлов", zap.Error(err))
	}

	start := time.Now()
	result, err := workspace.Sweep(*maxAge, *dryRun)
	if err != nil {
		logger.Fatal("Ошибка очистки временных файлов", zap.Error(err))
	}

	for _, path := range result.Removed {
		if *dryRun {
			logger.Info("Будет удален", zap.String("file", path))
		} else {
			logger.Debug("Удален", zap.String("file", path))
		}
	}

	logger.Info("Очистка временных файлов завершена",
		zap.String("dir", workspace.Dir()),
		zap.Duration("max_age", *maxAge),
		zap.Bool("dry_run", *dryRun),
		zap.Int("removed", len(result.Removed)),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)))
}
