package tts

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const mozillaDefaultModel = "tts_models/en/ljspeech/tacotron2-DDC"

// MozillaService предоставляет функциональность Text-to-Speech через Mozilla/Coqui TTS CLI
type MozillaService struct {
	commandSynth
	model string
}

var _ TTSService = (*MozillaService)(nil)

// NewMozillaService создает новый Mozilla TTS сервис
func NewMozillaService(logger *zap.Logger, binary, model, tempDir string) *MozillaService {
	if binary == "" {
		binary = "tts"
	}
	if model == "" {
		model = mozillaDefaultModel
	}
	return &MozillaService{
		commandSynth: commandSynth{binary: binary, tempDir: tempDir, logger: logger},
		model:        model,
	}
}

// SynthesizeText преобразует текст в WAV.
// opts.Voice передается как speaker_idx многоголосой модели, темп речи CLI не поддерживает.
func (s *MozillaService) SynthesizeText(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error) {
	s.logger.Info("🎵 генерируем аудио через Mozilla TTS",
		zap.String("model", s.model),
		zap.String("voice", opts.Voice),
		zap.Int("text_length", len(text)))

	audioFile, err := s.tempFile("mozilla-*.wav")
	if err != nil {
		return nil, err
	}
	defer s.remove(audioFile)

	args := []string{
		"--text", text,
		"--model_name", s.model,
		"--out_path", audioFile,
	}
	if opts.Voice != "" {
		args = append(args, "--speaker_idx", opts.Voice)
	}

	if err := s.run(ctx, args...); err != nil {
		return nil, fmt.Errorf("ошибка генерации аудио: %w", err)
	}

	audioData, err := s.readOutput(audioFile)
	if err != nil {
		return nil, err
	}

	s.logger.Info("🎵 аудио успешно сгенерировано", zap.Int("audio_size", len(audioData)))

	return audioData, nil
}

// ContentType возвращает MIME тип WAV
func (s *MozillaService) ContentType() string {
	return "audio/wav"
}
