package models

import (
	"strconv"
)

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse ответ GET /health
type HealthResponse struct {
	Status string `json:"status"`
}

// TranscribeResponse ответ POST /transcribe
type TranscribeResponse struct {
	Transcription string `json:"transcription"`
}

// SpeakRequest тело POST /speak
type SpeakRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// VoiceResponseRequest тело POST /voice-response
type VoiceResponseRequest struct {
	Text         string `json:"text"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Voice        string `json:"voice,omitempty"`
}

// TextRequest тело POST /text
type TextRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// TextResponse ответ POST /text
type TextResponse struct {
	Reply string `json:"reply"`
}

// AudioEnvelope JSON ответ со звуком для клиентов, запросивших application/json
type AudioEnvelope struct {
	Text       string       `json:"text"`
	Transcript string       `json:"transcript,omitempty"`
	Audio      AudioPayload `json:"audio"`
}

// AudioPayload аудио в виде массива байт
type AudioPayload struct {
	Data ByteList `json:"data"`
}

// ByteList сериализуется в JSON как массив чисел, а не base64 строка
type ByteList []byte

// MarshalJSON реализует json.Marshaler
func (b ByteList) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, len(b)*4+2)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}
