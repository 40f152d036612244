package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"voice-server/internal/pipeline"
	"voice-server/pkg/models"
)

// handlerFunc обработчик, возвращающий ошибку вместо записи ответа
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle единственное место, где ошибка превращается в HTTP ответ
func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.writeError(w, r, &pipeline.Error{
				Kind: pipeline.Internal,
				Op:   r.URL.Path,
				Err:  fmt.Errorf("паника в обработчике: %v", rec),
			})
		}()

		if err := h(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := pipeline.KindOf(err)

	status := http.StatusInternalServerError
	if kind == pipeline.InvalidInput {
		status = http.StatusBadRequest
	}

	fields := []zap.Field{
		zap.String("kind", kind.String()),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	}
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		fields = append(fields, zap.String("op", pe.Op))
	}

	if status == http.StatusBadRequest {
		s.logger.Warn("некорректный запрос", fields...)
	} else {
		s.logger.Error("ошибка обработки запроса", fields...)
	}

	s.writeJSON(w, status, models.ErrorResponse{Error: pipeline.MessageOf(err)})
}

func badRequest(op, msg string, err error) error {
	return &pipeline.Error{Kind: pipeline.InvalidInput, Op: op, Message: msg, Err: err}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("ошибка записи JSON ответа", zap.Error(err))
	}
}
