package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kc-checkin-bot/internal/adapters/bamboo"
	"kc-checkin-bot/internal/adapters/bot"
	"kc-checkin-bot/internal/adapters/repo"
	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/cache"
	"kc-checkin-bot/internal/infra/config"
	"kc-checkin-bot/internal/infra/db"
	applog "kc-checkin-bot/internal/infra/log"
	"kc-checkin-bot/internal/infra/metrics"
	"kc-checkin-bot/internal/infra/queue"
	"kc-checkin-bot/internal/usecase/checkin"
	"kc-checkin-bot/internal/usecase/reminder"
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
		logger.Fatal().Err(err).Msg("bot: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось подготовить схему БД")
	}

	var mirrorQueue domain.MirrorQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitMirrorQueue(cfg.RabbitURL, cfg.Queues.Mirror)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		mirrorQueue = rabbit
	} else {
		logger.Warn().Msg("bot: RabbitMQ не настроен, отметки не зеркалируются")
	}

	var statusCache domain.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		statusCache = cache.NewRedis(redisClient)
	} else {
		logger.Warn().Msg("bot: Redis не настроен, статус внешней системы не обновляется")
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bot: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}

	locks := checkin.NewLocks()
	checkinService := checkin.NewService(repoAdapter, mirrorQueue, locks, logger, cfg.Subscribers.Password)
	messenger := bot.NewMessenger(botAPI, logger)
	reminderService := reminder.NewService(repoAdapter, messenger, locks, logger)

	var mirrorClient domain.MirrorClient
	if statusCache != nil {
		mirrorClient = bamboo.NewClient(cfg.Mirror.Timeout)
	}
	loop := reminder.NewLoop(
		reminderService,
		checkinService,
		repoAdapter,
		mirrorClient,
		statusCache,
		logger.With().Str("component", "reminder-loop").Logger(),
		cfg.Reminders.Interval,
		cfg.Reminders.MirrorStatusTTL,
		cfg.Mirror.Timeout,
	)
	go loop.Run(ctx)

	h := bot.NewHandler(botAPI, logger, checkinService, reminderService)

	if err := registerCommands(botAPI); err != nil {
		logger.Error().Err(err).Msg("bot: не удалось зарегистрировать команды")
	}

	if cfg.Telegram.WebhookURL != "" {
		runWebhook(ctx, cfg, logger, botAPI, h)
	} else {
		runPolling(ctx, logger, botAPI, h)
	}
	logger.Info().Msg("bot: остановлен")
}

// registerCommands публикует список команд в меню бота.
func registerCommands(botAPI *tgbotapi.BotAPI) error {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "subscribe", Description: "Подписаться на напоминания"},
		tgbotapi.BotCommand{Command: "dayin", Description: "Начало рабочего дня"},
		tgbotapi.BotCommand{Command: "lunchout", Description: "Уход на обед"},
		tgbotapi.BotCommand{Command: "lunchin", Description: "Возвращение с обеда"},
		tgbotapi.BotCommand{Command: "dayout", Description: "Конец рабочего дня"},
		tgbotapi.BotCommand{Command: "status", Description: "Карточка текущего дня"},
		tgbotapi.BotCommand{Command: "reset", Description: "Очистить отметки"},
		tgbotapi.BotCommand{Command: "timezone", Description: "Часовой пояс"},
		tgbotapi.BotCommand{Command: "schedule", Description: "Расписание недели"},
		tgbotapi.BotCommand{Command: "help", Description: "Справка"},
	)
	_, err := botAPI.Request(commands)
	return err
}

// runWebhook принимает апдейты через вебхук.
func runWebhook(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger, botAPI *tgbotapi.BotAPI, h *bot.Handler) {
	webhook, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: некорректный адрес вебхука")
	}
	if _, err := botAPI.Request(webhook); err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось установить вебхук")
	}

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, req *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(req.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("bot: вебхук запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("bot: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// runPolling принимает апдейты длинным опросом, когда вебхук не настроен.
func runPolling(ctx context.Context, logger zerolog.Logger, botAPI *tgbotapi.BotAPI, h *bot.Handler) {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := botAPI.GetUpdatesChan(updateCfg)

	logger.Info().Msg("bot: длинный опрос запущен")
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			return
		case update := <-updates:
			h.HandleUpdate(ctx, update)
		}
	}
}
