package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxStderr ограничивает вывод ffmpeg, попадающий в текст ошибки
const maxStderr = 512

// FFmpegConverter конвертирует аудио в целевой контейнер с помощью FFmpeg
type FFmpegConverter struct {
	binary     string
	format     string
	sampleRate int
	logger     *zap.Logger
}

// NewFFmpegConverter создает новый конвертер.
// format - расширение целевого контейнера (wav, mp3), sampleRate - частота дискретизации.
func NewFFmpegConverter(binary, format string, sampleRate int, logger *zap.Logger) *FFmpegConverter {
	if binary == "" {
		binary = "ffmpeg"
	}
	if format == "" {
		format = "wav"
	}
	if sampleRate <= 0 {
		sampleRate = 16000 // Whisper требует 16kHz
	}

	return &FFmpegConverter{
		binary:     binary,
		format:     format,
		sampleRate: sampleRate,
		logger:     logger,
	}
}

// Format возвращает расширение целевого контейнера без точки
func (c *FFmpegConverter) Format() string {
	return c.format
}

// CheckBinary проверяет, что FFmpeg установлен
func (c *FFmpegConverter) CheckBinary() error {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		return fmt.Errorf("ffmpeg не найден: %w", err)
	}

	c.logger.Debug("FFmpeg найден", zap.String("path", path))
	return nil
}

// Convert перекодирует inputPath в outputPath.
// Контекст ограничивает время работы FFmpeg: при отмене процесс убивается.
func (c *FFmpegConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	// Моно без видео дорожки, выходной файл перезаписывается
	cmd := exec.CommandContext(ctx, c.binary,
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(c.sampleRate),
		"-y",
		outputPath)

	cmd.WaitDelay = 2 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.logger.Debug("конвертируем аудио",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("format", c.format))

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("конвертация прервана: %w", errors.Join(ctxErr, err))
		}
		return fmt.Errorf("ошибка конвертации: %w: %s", err, truncate(stderr.String(), maxStderr))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("ffmpeg не создал выходной файл: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg создал пустой файл")
	}

	return nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
