package tts

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"go.uber.org/zap"
)

const festivalDefaultVoice = "voice_kal_diphone"

// festivalVoice допускает только имена функций голосов Festival, текст попадает в -eval
var festivalVoice = regexp.MustCompile(`^voice_[a-z0-9_]+$`)

// FestivalService предоставляет функциональность Text-to-Speech через Festival (text2wave)
type FestivalService struct {
	commandSynth
}

var _ TTSService = (*FestivalService)(nil)

// NewFestivalService создает новый Festival TTS сервис.
// binary - путь к text2wave, tempDir - директория для текста и результата.
func NewFestivalService(logger *zap.Logger, binary, tempDir string) *FestivalService {
	if binary == "" {
		binary = "text2wave"
	}
	return &FestivalService{
		commandSynth: commandSynth{binary: binary, tempDir: tempDir, logger: logger},
	}
}

// SynthesizeText преобразует текст в WAV через text2wave
func (s *FestivalService) SynthesizeText(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error) {
	voice := opts.Voice
	if voice == "" {
		voice = festivalDefaultVoice
	}
	if !festivalVoice.MatchString(voice) {
		return nil, fmt.Errorf("некорректное имя голоса Festival: %q", voice)
	}

	s.logger.Info("🎵 генерируем аудио через Festival",
		zap.String("voice", voice),
		zap.Int("text_length", len(text)))

	textFile, err := s.tempFile("festival-*.txt")
	if err != nil {
		return nil, err
	}
	defer s.remove(textFile)

	if err := os.WriteFile(textFile, []byte(text), 0600); err != nil {
		return nil, fmt.Errorf("ошибка записи текста: %w", err)
	}

	audioFile, err := s.tempFile("festival-*.wav")
	if err != nil {
		return nil, err
	}
	defer s.remove(audioFile)

	args := []string{"-eval", fmt.Sprintf("(%s)", voice)}
	if opts.Speed > 0 {
		// Duration_Stretch больше единицы замедляет речь
		stretch := strconv.FormatFloat(1/opts.Speed, 'f', 3, 64)
		args = append(args, "-eval", fmt.Sprintf("(Parameter.set 'Duration_Stretch %s)", stretch))
	}
	args = append(args, textFile, "-o", audioFile)

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
func (s *FestivalService) ContentType() string {
	return "audio/wav"
}
