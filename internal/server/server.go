package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"voice-server/internal/metrics"
	"voice-server/internal/pipeline"
)

// Pipeline операции конвейера, доступные HTTP слою
type Pipeline interface {
	Transcribe(ctx context.Context, in pipeline.InboundAudio, language string) (string, error)
	Converse(ctx context.Context, prompt, systemPrompt string) (string, error)
	Synthesize(ctx context.Context, text, voice string, speed float64) (*pipeline.SynthesizedAudio, error)
	SpeakReply(ctx context.Context, prompt, systemPrompt, voice string) (string, *pipeline.SynthesizedAudio, error)
	VoiceRoundTrip(ctx context.Context, in pipeline.InboundAudio, language string) (*pipeline.RoundTripResult, error)
}

// Options параметры HTTP слоя
type Options struct {
	MaxUploadBytes  int64
	HeaderEncoding  string // plain, base64
	HeaderMaxLength int
}

// Server HTTP интерфейс голосового сервиса
type Server struct {
	pipeline Pipeline
	metrics  *metrics.Metrics
	headers  headerEncoder
	opts     Options
	logger   *zap.Logger
	router   chi.Router
}

// New создает сервер и регистрирует маршруты
func New(p Pipeline, m *metrics.Metrics, opts Options, logger *zap.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}

	s := &Server{
		pipeline: p,
		metrics:  m,
		headers:  headerEncoder{encoding: opts.HeaderEncoding, maxLen: opts.HeaderMaxLength},
		opts:     opts,
		logger:   logger,
	}
	s.router = s.routes()

	return s
}

// Handler возвращает корневой http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{
			HeaderReplyText,
			HeaderReplyText + encodingSuffix,
			HeaderTranscriptText,
			HeaderTranscriptText + encodingSuffix,
		},
		MaxAge: 300,
	}))

	metricsHandler := metrics.NewHandler(s.metrics, s.logger)

	r.Get("/", s.handleIndex)
	r.Get("/health", metricsHandler.HealthHandler)
	r.Method(http.MethodGet, "/metrics", metricsHandler.MetricsHandler())

	r.Post("/transcribe", s.handle(s.handleTranscribe))
	r.Post("/speak", s.handle(s.handleSpeak))
	r.Post("/voice-response", s.handle(s.handleVoiceResponse))
	r.Post("/text", s.handle(s.handleText))
	r.Post("/voice-round-trip", s.handle(s.handleVoiceRoundTrip))

	return r
}
