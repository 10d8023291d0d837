package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Subscribers struct {
		Password string `envconfig:"SUBSCRIBER_PASSWORD"`
	} `envconfig:""`

	Reminders struct {
		Interval        time.Duration `envconfig:"REMINDER_INTERVAL" default:"5m"`
		MirrorStatusTTL time.Duration `envconfig:"MIRROR_STATUS_TTL" default:"15m"`
	} `envconfig:""`

	Mirror struct {
		Timeout time.Duration `envconfig:"MIRROR_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Queues struct {
		Mirror string `envconfig:"MIRROR_QUEUE_KEY" default:"mirror_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
