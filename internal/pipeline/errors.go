package pipeline

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибку конвейера
type Kind int

const (
	// Internal - неклассифицированная ошибка
	Internal Kind = iota
	// InvalidInput - запрос клиента некорректен
	InvalidInput
	// ConversionFailure - FFmpeg не смог перекодировать аудио
	ConversionFailure
	// UpstreamFailure - внешний сервис вернул ошибку, не ответил вовремя или запрос отменен
	UpstreamFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case ConversionFailure:
		return "conversion_failure"
	case UpstreamFailure:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// Error ошибка конвейера. Message безопасно отдавать клиенту, Err остается в логах.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает категорию ошибки, Internal для неклассифицированных
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Internal
}

// MessageOf возвращает сообщение для клиента
func MessageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return "Internal server error"
}

func invalidInput(op, msg string) *Error {
	return &Error{Kind: InvalidInput, Op: op, Message: msg}
}

func conversionFailure(op string, err error) *Error {
	return &Error{Kind: ConversionFailure, Op: op, Message: "Audio conversion failed", Err: err}
}

func upstreamFailure(op, msg string, err error) *Error {
	return &Error{Kind: UpstreamFailure, Op: op, Message: msg, Err: err}
}

func internal(op string, err error) *Error {
	return &Error{Kind: Internal, Op: op, Message: "Internal server error", Err: err}
}
