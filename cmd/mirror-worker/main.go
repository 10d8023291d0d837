package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"kc-checkin-bot/internal/adapters/bamboo"
	"kc-checkin-bot/internal/adapters/bot"
	"kc-checkin-bot/internal/adapters/jira"
	"kc-checkin-bot/internal/adapters/repo"
	"kc-checkin-bot/internal/infra/config"
	"kc-checkin-bot/internal/infra/db"
	applog "kc-checkin-bot/internal/infra/log"
	"kc-checkin-bot/internal/infra/metrics"
	"kc-checkin-bot/internal/infra/queue"
	"kc-checkin-bot/internal/usecase/mirror"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("mirror-worker: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	if cfg.RabbitURL == "" {
		logger.Fatal().Msg("mirror-worker: не указан адрес RabbitMQ (RABBITMQ_URL)")
	}
	mirrorQueue, err := queue.NewRabbitMirrorQueue(cfg.RabbitURL, cfg.Queues.Mirror)
	if err != nil {
		logger.Fatal().Err(err).Msg("mirror-worker: не удалось инициализировать очередь RabbitMQ")
	}
	defer mirrorQueue.Close()

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("mirror-worker: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("mirror-worker: не удалось создать бота")
	}
	messenger := bot.NewMessenger(botAPI, logger)

	service := mirror.NewService(
		repoAdapter,
		bamboo.NewClient(cfg.Mirror.Timeout),
		jira.NewClient(cfg.Mirror.Timeout),
		messenger,
		logger,
		cfg.Mirror.Timeout,
	)

	logger.Info().Msg("mirror-worker: запуск обработки очереди")
	for {
		job, err := mirrorQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error().Err(err).Msg("mirror-worker: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}
		if err := service.Process(ctx, job); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Int64("user", job.TGUserID).
				Msg("mirror-worker: ошибка обработки задания")
		}
	}
	logger.Info().Msg("mirror-worker: остановлен")
}
