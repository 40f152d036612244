package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"voice-server/internal/pipeline"
	"voice-server/pkg/models"
)

const (
	maxJSONBytes    = 1 << 20
	multipartMemory = 8 << 20
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Voice server is live."))
}

// handleTranscribe POST /transcribe: multipart поле audio и необязательное language
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) error {
	in, language, cleanup, err := s.readAudio(w, r, "transcribe")
	if err != nil {
		return err
	}
	defer cleanup()

	text, err := s.pipeline.Transcribe(r.Context(), in, language)
	if err != nil {
		return err
	}

	s.writeJSON(w, http.StatusOK, models.TranscribeResponse{Transcription: text})
	return nil
}

// handleSpeak POST /speak: озвучивает переданный текст
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) error {
	req := decodeJSON[models.SpeakRequest](s, w, r)

	synth, err := s.pipeline.Synthesize(r.Context(), req.Text, req.Voice, req.Speed)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(req.Text)
	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, models.AudioEnvelope{
			Text:  text,
			Audio: models.AudioPayload{Data: synth.Data},
		})
		return nil
	}

	s.headers.set(w.Header(), HeaderReplyText, text)
	s.writeAudio(w, synth)
	return nil
}

// handleVoiceResponse POST /voice-response: ответ chat-completion в виде аудио
func (s *Server) handleVoiceResponse(w http.ResponseWriter, r *http.Request) error {
	req := decodeJSON[models.VoiceResponseRequest](s, w, r)
	if strings.TrimSpace(req.Text) == "" {
		return badRequest("voice-response", pipeline.MsgNoText, nil)
	}

	reply, synth, err := s.pipeline.SpeakReply(r.Context(), req.Text, req.SystemPrompt, req.Voice)
	if err != nil {
		return err
	}

	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, models.AudioEnvelope{
			Text:  reply,
			Audio: models.AudioPayload{Data: synth.Data},
		})
		return nil
	}

	s.headers.set(w.Header(), HeaderReplyText, reply)
	s.writeAudio(w, synth)
	return nil
}

// handleText POST /text: текстовый ответ chat-completion
func (s *Server) handleText(w http.ResponseWriter, r *http.Request) error {
	req := decodeJSON[models.TextRequest](s, w, r)

	reply, err := s.pipeline.Converse(r.Context(), req.Prompt, req.SystemPrompt)
	if err != nil {
		return err
	}

	s.writeJSON(w, http.StatusOK, models.TextResponse{Reply: reply})
	return nil
}

// handleVoiceRoundTrip POST /voice-round-trip: аудио на входе, аудио ответа на выходе
func (s *Server) handleVoiceRoundTrip(w http.ResponseWriter, r *http.Request) error {
	in, language, cleanup, err := s.readAudio(w, r, "voice-round-trip")
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := s.pipeline.VoiceRoundTrip(r.Context(), in, language)
	if err != nil {
		return err
	}

	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, models.AudioEnvelope{
			Text:       result.Reply,
			Transcript: result.Transcript,
			Audio:      models.AudioPayload{Data: result.Audio.Data},
		})
		return nil
	}

	s.headers.set(w.Header(), HeaderTranscriptText, result.Transcript)
	s.headers.set(w.Header(), HeaderReplyText, result.Reply)
	s.writeAudio(w, result.Audio)
	return nil
}

// readAudio разбирает multipart форму с полем audio.
// cleanup закрывает файл и удаляет временные файлы multipart.
func (s *Server) readAudio(w http.ResponseWriter, r *http.Request, op string) (pipeline.InboundAudio, string, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pipeline.InboundAudio{}, "", nil, badRequest(op, pipeline.MsgAudioTooLarge, err)
		}
		return pipeline.InboundAudio{}, "", nil, badRequest(op, pipeline.MsgNoAudio, err)
	}

	form := r.MultipartForm
	file, header, err := r.FormFile("audio")
	if err != nil {
		if rmErr := form.RemoveAll(); rmErr != nil {
			s.logger.Warn("ошибка удаления временных файлов формы", zap.Error(rmErr))
		}
		return pipeline.InboundAudio{}, "", nil, badRequest(op, pipeline.MsgNoAudio, err)
	}

	cleanup := func() {
		_ = file.Close()
		if err := form.RemoveAll(); err != nil {
			s.logger.Warn("ошибка удаления временных файлов формы", zap.Error(err))
		}
	}

	in := pipeline.InboundAudio{Filename: header.Filename, Body: file}
	return in, strings.TrimSpace(r.FormValue("language")), cleanup, nil
}

// decodeJSON читает тело запроса. Некорректный JSON дает пустое значение,
// и обработчик сообщает об отсутствующем поле.
func decodeJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) T {
	var v T

	body := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		s.logger.Debug("не удалось разобрать JSON", zap.String("path", r.URL.Path), zap.Error(err))
		var zero T
		return zero
	}

	return v
}

func (s *Server) writeAudio(w http.ResponseWriter, synth *pipeline.SynthesizedAudio) {
	w.Header().Set("Content-Type", synth.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(synth.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(synth.Data); err != nil {
		s.logger.Debug("ошибка записи аудио", zap.Error(err))
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
