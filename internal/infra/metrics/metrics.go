package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RemindersSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_sent_total",
		Help: "Отправленные напоминания по событиям",
	}, []string{"action"})

	RemindersRetractedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_retracted_total",
		Help: "Отозванные устаревшие напоминания по событиям",
	}, []string{"action"})

	ClockActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clock_actions_total",
		Help: "Зафиксированные отметки по событиям и источникам",
	}, []string{"action", "source"})

	EvaluationPassSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evaluation_pass_seconds",
		Help:    "Время одного прохода цикла напоминаний",
		Buckets: prometheus.DefBuckets,
	})

	EvaluationSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "evaluation_subscribers",
		Help: "Число подписчиков в последнем проходе",
	})

	SubscriberFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evaluation_subscriber_failures_total",
		Help: "Ошибки обработки отдельных подписчиков в цикле",
	})

	MirrorJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_jobs_total",
		Help: "Обработанные задания зеркалирования по результату",
	}, []string{"result"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RemindersSentTotal,
		RemindersRetractedTotal,
		ClockActionsTotal,
		EvaluationPassSeconds,
		EvaluationSubscribers,
		SubscriberFailuresTotal,
		MirrorJobsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveEvaluationPass записывает длительность прохода и число подписчиков.
func ObserveEvaluationPass(duration time.Duration, subscribers int) {
	EvaluationPassSeconds.Observe(duration.Seconds())
	EvaluationSubscribers.Set(float64(subscribers))
}

// IncReminderSent увеличивает счётчик отправленных напоминаний.
func IncReminderSent(action string) {
	RemindersSentTotal.WithLabelValues(action).Inc()
}

// IncReminderRetracted увеличивает счётчик отозванных напоминаний.
func IncReminderRetracted(action string) {
	RemindersRetractedTotal.WithLabelValues(action).Inc()
}

// IncClockAction увеличивает счётчик отметок.
func IncClockAction(action, source string) {
	ClockActionsTotal.WithLabelValues(action, source).Inc()
}

// IncMirrorJob увеличивает счётчик заданий зеркалирования.
func IncMirrorJob(result string) {
	MirrorJobsTotal.WithLabelValues(result).Inc()
}

// FormatUserID приводит идентификатор подписчика к строковой метке.
func FormatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}
