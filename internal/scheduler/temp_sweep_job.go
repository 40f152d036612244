package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"voice-server/internal/audio"
)

// SweepRecorder принимает количество удаленных файлов
type SweepRecorder interface {
	RecordTempFilesRemoved(n int)
}

// TempSweepJob удаляет временные аудио файлы, оставшиеся после аварийного завершения процесса
type TempSweepJob struct {
	workspace *audio.Workspace
	maxAge    time.Duration
	metrics   SweepRecorder
	logger    *zap.Logger
}

// NewTempSweepJob создает задачу уборки. Файлы моложе maxAge не трогаются.
func NewTempSweepJob(workspace *audio.Workspace, maxAge time.Duration, metrics SweepRecorder, logger *zap.Logger) *TempSweepJob {
	return &TempSweepJob{
		workspace: workspace,
		maxAge:    maxAge,
		metrics:   metrics,
		logger:    logger,
	}
}

func (j *TempSweepJob) Name() string {
	return "temp_sweep"
}

// Run выполняет один проход уборки
func (j *TempSweepJob) Run(ctx context.Context) error {
	result, err := j.workspace.Sweep(j.maxAge, false)
	if err != nil {
		return fmt.Errorf("ошибка уборки временных файлов: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordTempFilesRemoved(len(result.Removed))
	}

	if len(result.Removed) > 0 || result.Failed > 0 {
		j.logger.Info("уборка временных файлов завершена",
			zap.String("dir", j.workspace.Dir()),
			zap.Int("removed", len(result.Removed)),
			zap.Int("failed", result.Failed))
	}

	return nil
}
