package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxStderr ограничивает вывод синтезатора, попадающий в текст ошибки
const maxStderr = 512

// commandSynth общая часть локальных синтезаторов: временные файлы и запуск процесса
type commandSynth struct {
	binary  string
	tempDir string
	logger  *zap.Logger
}

// tempFile создает пустой уникальный файл в директории временных файлов
func (c commandSynth) tempFile(pattern string) (string, error) {
	file, err := os.CreateTemp(c.tempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	if err := file.Close(); err != nil {
		c.remove(file.Name())
		return "", fmt.Errorf("ошибка закрытия временного файла: %w", err)
	}
	return file.Name(), nil
}

func (c commandSynth) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("ошибка удаления временного файла",
			zap.String("filename", path),
			zap.Error(err))
	}
}

// run запускает синтезатор. При отмене контекста процесс убивается.
func (c commandSynth) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.WaitDelay = 2 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("синтез прерван: %w", errors.Join(ctxErr, err))
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr] + "..."
		}
		return fmt.Errorf("ошибка выполнения %s: %w: %s", c.binary, err, msg)
	}
	return nil
}

// readOutput читает сгенерированный файл
func (c commandSynth) readOutput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аудио: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s создал пустой файл", c.binary)
	}
	return data, nil
}
