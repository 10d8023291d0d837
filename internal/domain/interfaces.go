package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSubscriberNotFound возвращается, если записи подписчика нет в хранилище.
var ErrSubscriberNotFound = errors.New("подписчик не найден")

// ErrRecipientUnreachable — доставка невозможна навсегда: бот заблокирован
// или аккаунт удалён. Отличается от временных ошибок транспорта.
var ErrRecipientUnreachable = errors.New("получатель недоступен")

// SubscriberRepo управляет записями подписчиков. Одна запись на подписчика,
// запись целиком, последняя запись побеждает.
type SubscriberRepo interface {
	Get(tgUserID int64) (Subscriber, error)
	ListAll() ([]Subscriber, error)
	Save(sub Subscriber) error
	Delete(tgUserID int64) error
}

// Notifier — транспорт сообщений. SendReminder возвращает идентификатор
// отправленного сообщения для последующего отзыва.
type Notifier interface {
	SendReminder(chatID int64, action Action) (int, error)
	DeleteMessage(chatID int64, messageID int) error
	SendText(chatID int64, text string) error
}

// MirrorClient — внешняя система учёта времени (BambooHR). Вызовы
// best-effort: их неуспех никогда не откатывает локальный журнал.
type MirrorClient interface {
	RefreshStatus(ctx context.Context, cred BambooCredential) (string, error)
	PerformClockAction(ctx context.Context, cred BambooCredential, action Action) error
}

// WorklogClient — трекер задач (Jira), куда зеркалируется отработанное время.
type WorklogClient interface {
	AddWorklog(ctx context.Context, cred JiraCredential, started time.Time, worked time.Duration) error
}

// MirrorQueue — очередь заданий на зеркалирование отметок.
type MirrorQueue interface {
	Enqueue(ctx context.Context, job MirrorJob) error
	Pop(ctx context.Context) (MirrorJob, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
