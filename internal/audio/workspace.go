package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Workspace представляет приватную директорию для временных аудио файлов
type Workspace struct {
	dir    string
	logger *zap.Logger
}

// NewWorkspace создает директорию для временных файлов, если ее нет
func NewWorkspace(dir string, logger *zap.Logger) (*Workspace, error) {
	if dir == "" {
		return nil, fmt.Errorf("не задана директория для временных файлов")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}

	return &Workspace{
		dir:    dir,
		logger: logger,
	}, nil
}

// Dir возвращает путь к директории
func (w *Workspace) Dir() string {
	return w.dir
}

// Scope создает набор временных файлов одного запроса.
// Все файлы набора удаляются при вызове Close.
func (w *Workspace) Scope() *Scope {
	return &Scope{workspace: w}
}

// Scope владеет временными файлами одного запроса. Не потокобезопасен.
type Scope struct {
	workspace *Workspace
	paths     []string
}

// Path резервирует уникальное имя файла с расширением ext.
// Сам файл не создается.
func (s *Scope) Path(ext string) string {
	path := filepath.Join(s.workspace.dir, uuid.NewString()+cleanExt(ext))
	s.paths = append(s.paths, path)
	return path
}

// Create создает новый уникальный файл с расширением ext
func (s *Scope) Create(ext string) (*os.File, error) {
	path := s.Path(ext)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	return file, nil
}

// Release удаляет файл досрочно, например исходник сразу после конвертации
func (s *Scope) Release(path string) {
	for i, p := range s.paths {
		if p != path {
			continue
		}
		s.paths = append(s.paths[:i], s.paths[i+1:]...)
		s.remove(path)
		return
	}
}

// Close удаляет все файлы набора
func (s *Scope) Close() error {
	var errs []error
	for _, path := range s.paths {
		if err := s.remove(path); err != nil {
			errs = append(errs, err)
		}
	}
	s.paths = nil

	return errors.Join(errs...)
}

// Len возвращает количество файлов, которыми владеет набор
func (s *Scope) Len() int {
	return len(s.paths)
}

func (s *Scope) remove(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	s.workspace.logger.Warn("ошибка удаления временного файла",
		zap.String("path", path),
		zap.Error(err))
	return err
}

// SweepResult содержит результат очистки устаревших файлов
type SweepResult struct {
	Removed []string
	Failed  int
}

// Sweep удаляет файлы директории старше maxAge.
// Файлы остаются от аварийно завершенных процессов.
func (w *Workspace) Sweep(maxAge time.Duration, dryRun bool) (*SweepResult, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("возраст файлов для уборки должен быть положительным, получен %v", maxAge)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", w.dir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	result := &SweepResult{}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// файл мог быть удален запросом между ReadDir и Info
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(w.dir, entry.Name())
		if dryRun {
			result.Removed = append(result.Removed, path)
			continue
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("ошибка удаления устаревшего файла",
				zap.String("path", path),
				zap.Error(err))
			result.Failed++
			continue
		}
		result.Removed = append(result.Removed, path)
	}

	return result, nil
}

// cleanExt очищает расширение от потенциально опасных символов
func cleanExt(ext string) string {
	ext = filepath.Ext("x" + filepath.Base(ext))
	if len(ext) < 2 {
		return ".tmp"
	}

	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ".tmp"
		}
	}
	if len(ext) > 8 {
		return ".tmp"
	}

	return strings.ToLower(ext)
}
