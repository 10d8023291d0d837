package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
)

// Postgres реализует domain.SubscriberRepo на pgxpool. Одна строка — один
// подписчик; расписание, журнал и учётные данные лежат в JSONB.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.SubscriberRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// EnsureSchema создаёт таблицу подписчиков, если её ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subscribers (
    tg_user_id        BIGINT PRIMARY KEY,
    username          TEXT NOT NULL DEFAULT '',
    first_name        TEXT NOT NULL DEFAULT '',
    last_name         TEXT NOT NULL DEFAULT '',
    timezone          TEXT NOT NULL DEFAULT 'UTC',
    schedule          JSONB NOT NULL DEFAULT '[]',
    log               JSONB NOT NULL DEFAULT '{}',
    bamboo_credential JSONB,
    jira_credential   JSONB,
    mirror_status     TEXT NOT NULL DEFAULT '',
    mirror_checked_at TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)
`)
	if err != nil {
		return fmt.Errorf("создание схемы: %w", err)
	}
	return nil
}

const subscriberColumns = `tg_user_id, username, first_name, last_name, timezone,
schedule, log, bamboo_credential, jira_credential, mirror_status, mirror_checked_at,
created_at, updated_at`

// Get возвращает запись подписчика.
func (p *Postgres) Get(tgUserID int64) (domain.Subscriber, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE tg_user_id = $1`, tgUserID)
	sub, err := scanSubscriber(row)
	metrics.ObserveNetworkRequest("postgres", "subscriber_get", "subscribers", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscriber{}, domain.ErrSubscriberNotFound
		}
		return domain.Subscriber{}, fmt.Errorf("чтение подписчика: %w", err)
	}
	return sub, nil
}

// ListAll возвращает всех подписчиков.
func (p *Postgres) ListAll() ([]domain.Subscriber, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY tg_user_id`)
	metrics.ObserveNetworkRequest("postgres", "subscriber_list", "subscribers", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка подписчиков: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение строки подписчика: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход подписчиков: %w", err)
	}
	return subs, nil
}

// Save целиком сохраняет запись (insert или update, последняя запись побеждает).
func (p *Postgres) Save(sub domain.Subscriber) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	scheduleJSON, err := json.Marshal(sub.Schedule)
	if err != nil {
		return fmt.Errorf("сериализация расписания: %w", err)
	}
	logJSON, err := encodeLog(sub.Log)
	if err != nil {
		return fmt.Errorf("сериализация журнала: %w", err)
	}
	bambooJSON, err := encodeCredential(sub.Bamboo)
	if err != nil {
		return fmt.Errorf("сериализация bamboo: %w", err)
	}
	jiraJSON, err := encodeCredential(sub.Jira)
	if err != nil {
		return fmt.Errorf("сериализация jira: %w", err)
	}

	var checkedAt sql.NullTime
	if !sub.MirrorCheckedAt.IsZero() {
		checkedAt = sql.NullTime{Time: sub.MirrorCheckedAt.UTC(), Valid: true}
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO subscribers (tg_user_id, username, first_name, last_name, timezone,
    schedule, log, bamboo_credential, jira_credential, mirror_status, mirror_checked_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (tg_user_id) DO UPDATE SET
    username = EXCLUDED.username,
    first_name = EXCLUDED.first_name,
    last_name = EXCLUDED.last_name,
    timezone = EXCLUDED.timezone,
    schedule = EXCLUDED.schedule,
    log = EXCLUDED.log,
    bamboo_credential = EXCLUDED.bamboo_credential,
    jira_credential = EXCLUDED.jira_credential,
    mirror_status = EXCLUDED.mirror_status,
    mirror_checked_at = EXCLUDED.mirror_checked_at,
    updated_at = now()
`, sub.TGUserID, sub.Username, sub.FirstName, sub.LastName, timezoneOrUTC(sub.Timezone),
		scheduleJSON, logJSON, bambooJSON, jiraJSON, sub.MirrorStatus, checkedAt)
	metrics.ObserveNetworkRequest("postgres", "subscriber_save", "subscribers", start, err)
	if err != nil {
		return fmt.Errorf("сохранение подписчика: %w", err)
	}
	return nil
}

// Delete удаляет запись подписчика.
func (p *Postgres) Delete(tgUserID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM subscribers WHERE tg_user_id = $1`, tgUserID)
	metrics.ObserveNetworkRequest("postgres", "subscriber_delete", "subscribers", start, err)
	if err != nil {
		return fmt.Errorf("удаление подписчика: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (domain.Subscriber, error) {
	var (
		sub          domain.Subscriber
		scheduleJSON []byte
		logJSON      []byte
		bambooJSON   []byte
		jiraJSON     []byte
		checkedAt    sql.NullTime
	)
	err := row.Scan(&sub.TGUserID, &sub.Username, &sub.FirstName, &sub.LastName, &sub.Timezone,
		&scheduleJSON, &logJSON, &bambooJSON, &jiraJSON, &sub.MirrorStatus, &checkedAt,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return domain.Subscriber{}, err
	}

	// Расписание разбирается терпимо: битые слоты вырождаются в пустые.
	_ = json.Unmarshal(scheduleJSON, &sub.Schedule)
	sub.Log = decodeLog(logJSON)
	if len(bambooJSON) > 0 {
		var cred domain.BambooCredential
		if err := json.Unmarshal(bambooJSON, &cred); err == nil {
			sub.Bamboo = &cred
		}
	}
	if len(jiraJSON) > 0 {
		var cred domain.JiraCredential
		if err := json.Unmarshal(jiraJSON, &cred); err == nil {
			sub.Jira = &cred
		}
	}
	if checkedAt.Valid {
		sub.MirrorCheckedAt = checkedAt.Time
	}
	return sub, nil
}

func encodeLog(log domain.ActionLog) ([]byte, error) {
	raw := make(map[string]string, len(log))
	for action, ts := range log {
		if ts.IsZero() {
			continue
		}
		raw[string(action)] = ts.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(raw)
}

// decodeLog разбирает журнал; нечитаемые отметки вырождаются в «никогда».
func decodeLog(data []byte) domain.ActionLog {
	log := domain.ActionLog{}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return log
	}
	for key, value := range raw {
		action := domain.Action(strings.TrimSpace(key))
		if !action.Valid() {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			continue
		}
		log[action] = ts.UTC()
	}
	return log
}

func encodeCredential(v any) ([]byte, error) {
	switch cred := v.(type) {
	case *domain.BambooCredential:
		if cred == nil {
			return nil, nil
		}
	case *domain.JiraCredential:
		if cred == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func timezoneOrUTC(tz string) string {
	if strings.TrimSpace(tz) == "" {
		return "UTC"
	}
	return tz
}
