package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger   *zap.Logger
	registry *prometheus.Registry

	// Счетчики
	requests         *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	tempFilesRemoved prometheus.Counter

	// Гистограммы
	upstreamDuration   *prometheus.HistogramVec
	conversionDuration *prometheus.HistogramVec
	requestDuration    *prometheus.HistogramVec

	// Gauge метрики
	inFlight prometheus.Gauge

	// Мьютекс для thread-safety
	mu sync.RWMutex
}

// New создает новый экземпляр метрик со своим реестром
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),

		// Счетчики HTTP запросов
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_requests_total",
				Help: "Общее количество HTTP запросов",
			},
			[]string{"endpoint", "status"},
		),

		// Счетчики вызовов внешних сервисов
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "Общее количество запросов к внешним сервисам",
			},
			[]string{"service", "status"}, // service: transcription, chat, speech; status: success, failed
		),

		tempFilesRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "temp_files_removed_total",
				Help: "Количество устаревших временных файлов, удаленных уборщиком",
			},
		),

		// Гистограмма времени ответа внешних сервисов
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_duration_seconds",
				Help:    "Время ответа внешних сервисов в секундах",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"service"},
		),

		// Гистограмма времени конвертации FFmpeg
		conversionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audio_conversion_duration_seconds",
				Help:    "Время конвертации аудио в секундах",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voice_request_duration_seconds",
				Help:    "Время обработки HTTP запроса в секундах",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "voice_requests_in_flight",
				Help: "Количество запросов в обработке",
			},
		),
	}

	// Регистрируем все метрики
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.upstreamRequests,
		m.tempFilesRemoved,
		m.upstreamDuration,
		m.conversionDuration,
		m.requestDuration,
		m.inFlight,
	)

	return m
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementCounter увеличивает счетчик
func (m *Metrics) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var counter *prometheus.CounterVec

	switch name {
	case "voice_requests_total":
		counter = m.requests
	case "upstream_requests_total":
		counter = m.upstreamRequests
	default:
		m.logger.Error("неизвестная метрика", zap.String("name", name))
		return
	}

	counter.WithLabelValues(labels...).Inc()
	m.logger.Debug("метрика увеличена", zap.String("metric", name), zap.Strings("labels", labels))
}

// AddGauge изменяет значение gauge метрики на delta
func (m *Metrics) AddGauge(name string, delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "voice_requests_in_flight":
		m.inFlight.Add(delta)
	default:
		m.logger.Error("неизвестная gauge метрика", zap.String("name", name))
	}
}

// ObserveHistogram добавляет наблюдение в гистограмму
func (m *Metrics) ObserveHistogram(name string, value float64, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "upstream_duration":
		m.upstreamDuration.WithLabelValues(labels...).Observe(value)
	case "audio_conversion_duration":
		m.conversionDuration.WithLabelValues(labels...).Observe(value)
	case "request_duration":
		m.requestDuration.WithLabelValues(labels...).Observe(value)
	default:
		m.logger.Error("неизвестная гистограмма", zap.String("name", name))
		return
	}

	m.logger.Debug("гистограмма обновлена", zap.String("metric", name), zap.Float64("value", value))
}

// RecordRequest записывает завершенный HTTP запрос
func (m *Metrics) RecordRequest(endpoint string, status int, seconds float64) {
	m.IncrementCounter("voice_requests_total", endpoint, strconv.Itoa(status))
	m.ObserveHistogram("request_duration", seconds, endpoint)
}

// RequestStarted и RequestFinished отслеживают запросы в обработке
func (m *Metrics) RequestStarted() {
	m.AddGauge("voice_requests_in_flight", 1)
}

func (m *Metrics) RequestFinished() {
	m.AddGauge("voice_requests_in_flight", -1)
}

// RecordUpstream записывает вызов внешнего сервиса
func (m *Metrics) RecordUpstream(service string, success bool, seconds float64) {
	m.IncrementCounter("upstream_requests_total", service, statusLabel(success))
	m.ObserveHistogram("upstream_duration", seconds, service)
}

// RecordConversion записывает запуск FFmpeg
func (m *Metrics) RecordConversion(success bool, seconds float64) {
	m.ObserveHistogram("audio_conversion_duration", seconds, statusLabel(success))
}

// RecordTempFilesRemoved записывает количество файлов, удаленных уборщиком
func (m *Metrics) RecordTempFilesRemoved(n int) {
	if n <= 0 {
		return
	}
	m.tempFilesRemoved.Add(float64(n))
}

// Handler возвращает HTTP handler для метрик
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
