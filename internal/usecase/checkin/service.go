package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
)

// ErrWrongPassword возвращается при неверном пароле подписки.
var ErrWrongPassword = errors.New("неверный пароль")

// ErrAlreadySubscribed возвращается при повторной подписке.
var ErrAlreadySubscribed = errors.New("вы уже подписаны")

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

// Profile — данные подписчика из Telegram-сообщения.
type Profile struct {
	TGUserID  int64
	Username  string
	FirstName string
	LastName  string
}

// Service отвечает за журнал отметок и настройки подписчика. Каждая операция
// читает-меняет-пишет запись целиком под мьютексом подписчика.
type Service struct {
	subs     domain.SubscriberRepo
	queue    domain.MirrorQueue
	locks    *Locks
	log      zerolog.Logger
	password string
}

// NewService создаёт сервис. queue может быть nil — тогда отметки не
// зеркалируются.
func NewService(subs domain.SubscriberRepo, queue domain.MirrorQueue, locks *Locks, logger zerolog.Logger, password string) *Service {
	return &Service{subs: subs, queue: queue, locks: locks, log: logger, password: password}
}

// Get возвращает запись подписчика.
func (s *Service) Get(tgUserID int64) (domain.Subscriber, error) {
	return s.subs.Get(tgUserID)
}

// Subscribe создаёт запись подписчика после проверки пароля.
func (s *Service) Subscribe(profile Profile, password string) error {
	if password != s.password || s.password == "" {
		return ErrWrongPassword
	}
	mu := s.locks.Of(profile.TGUserID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.subs.Get(profile.TGUserID); err == nil {
		return ErrAlreadySubscribed
	} else if !errors.Is(err, domain.ErrSubscriberNotFound) {
		return fmt.Errorf("проверка подписки: %w", err)
	}

	sub := domain.Subscriber{
		TGUserID:  profile.TGUserID,
		Username:  profile.Username,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Timezone:  "UTC",
		Log:       domain.ActionLog{},
	}
	if err := s.subs.Save(sub); err != nil {
		return fmt.Errorf("создание подписчика: %w", err)
	}
	s.log.Info().Int64("user", profile.TGUserID).Str("username", profile.Username).Msg("новый подписчик")
	return nil
}

// Unsubscribe удаляет запись подписчика.
func (s *Service) Unsubscribe(tgUserID int64) error {
	mu := s.locks.Of(tgUserID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.subs.Delete(tgUserID); err != nil {
		return fmt.Errorf("удаление подписчика: %w", err)
	}
	s.locks.Forget(tgUserID)
	return nil
}

// RecordAction ставит отметку в журнал. Локальный журнал обновляется
// безусловно; зеркалирование — отдельный неблокирующий эффект через очередь.
func (s *Service) RecordAction(ctx context.Context, tgUserID int64, action domain.Action, at time.Time, source domain.MirrorJobSource) (domain.Subscriber, error) {
	if !action.Valid() {
		return domain.Subscriber{}, fmt.Errorf("неизвестное событие %q", action)
	}

	mu := s.locks.Of(tgUserID)
	mu.Lock()
	sub, err := s.subs.Get(tgUserID)
	if err != nil {
		mu.Unlock()
		return domain.Subscriber{}, err
	}
	if sub.Log == nil {
		sub.Log = domain.ActionLog{}
	}
	sub.Log[action] = at.UTC()
	if err := s.subs.Save(sub); err != nil {
		mu.Unlock()
		return domain.Subscriber{}, fmt.Errorf("сохранение отметки: %w", err)
	}
	mu.Unlock()

	metrics.IncClockAction(string(action), string(source))
	s.enqueueMirror(ctx, sub, action, at, source)
	return sub, nil
}

// enqueueMirror ставит задание зеркалирования, если подписчику есть что
// зеркалировать. Ошибка очереди логируется и не влияет на отметку.
func (s *Service) enqueueMirror(ctx context.Context, sub domain.Subscriber, action domain.Action, at time.Time, source domain.MirrorJobSource) {
	if s.queue == nil {
		return
	}
	needBamboo := sub.Bamboo != nil
	needJira := sub.Jira != nil && action == domain.ActionDayOut
	if !needBamboo && !needJira {
		return
	}
	job := domain.MirrorJob{
		ID:         uuid.NewString(),
		TGUserID:   sub.TGUserID,
		Action:     action,
		At:         at.UTC(),
		Source:     source,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		metrics.IncMirrorJob("enqueue_error")
		s.log.Error().Err(err).Int64("user", sub.TGUserID).Str("action", string(action)).
			Msg("не удалось поставить задание зеркалирования")
	}
}

// ResetActions очищает журнал отметок.
func (s *Service) ResetActions(tgUserID int64) (domain.Subscriber, error) {
	var reset domain.Subscriber
	err := s.update(tgUserID, func(sub *domain.Subscriber) error {
		sub.Log = domain.ActionLog{}
		reset = *sub
		return nil
	})
	return reset, err
}

// SetTimezone сохраняет часовой пояс подписчика.
func (s *Service) SetTimezone(tgUserID int64, timezone string) error {
	normalized, err := normalizeTimezone(timezone)
	if err != nil {
		return err
	}
	return s.update(tgUserID, func(sub *domain.Subscriber) error {
		sub.Timezone = normalized
		return nil
	})
}

// SetWeekdaySchedule задаёт или очищает слот дня недели (индекс ISO 0..6).
func (s *Service) SetWeekdaySchedule(tgUserID int64, isoWeekday int, slot *domain.DaySchedule) error {
	if isoWeekday < 0 || isoWeekday > 6 {
		return fmt.Errorf("%w: индекс дня %d", domain.ErrInvalidSchedule, isoWeekday)
	}
	return s.update(tgUserID, func(sub *domain.Subscriber) error {
		sub.Schedule[isoWeekday] = slot
		return nil
	})
}

// SetBambooCredential сохраняет доступ к BambooHR.
func (s *Service) SetBambooCredential(tgUserID int64, cred domain.BambooCredential) error {
	return s.update(tgUserID, func(sub *domain.Subscriber) error {
		sub.Bamboo = &cred
		return nil
	})
}

// ClearBambooCredential убирает доступ к BambooHR и кэшированный статус.
func (s *Service) ClearBambooCredential(tgUserID int64) error {
	return s.update(tgUserID, func(sub *domain.Subscriber) error {
		sub.Bamboo = nil
		sub.MirrorStatus = ""
		sub.MirrorCheckedAt = time.Time{}
		return nil
	})
}

// SetJiraCredential сохраняет доступ к Jira.
func (s *Service) SetJiraCredential(tgUserID int64, cred domain.JiraCredential) error {
	return s.update(tgUserID, func(sub *domain.Subscriber) error {
		sub.Jira = &cred
		return nil
	})
}

// ClearJiraCredential убирает доступ к Jira.
func (s *Service) ClearJiraCredential(tgUserID int64) error {
	return s.update(tgUserID, func(sub *domain.Subscriber) error {
		sub.Jira = nil
		return nil
	})
}

// SetMirrorStatus обновляет кэшированный статус внешней системы.
func (s *Service) SetMirrorStatus(tgUserID int64, status string, checkedAt time.Time) error {
	return s.update(tgUserID, func(sub *domain.Subscriber) error {
		sub.MirrorStatus = status
		sub.MirrorCheckedAt = checkedAt.UTC()
		return nil
	})
}

// update выполняет атомарное чтение-изменение-запись под мьютексом подписчика.
func (s *Service) update(tgUserID int64, mutate func(*domain.Subscriber) error) error {
	mu := s.locks.Of(tgUserID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := s.subs.Get(tgUserID)
	if err != nil {
		return err
	}
	if err := mutate(&sub); err != nil {
		return err
	}
	if err := s.subs.Save(sub); err != nil {
		return fmt.Errorf("сохранение подписчика: %w", err)
	}
	return nil
}

// normalizeTimezone приводит ввод пользователя к каноническому имени IANA,
// прощая регистр и пробелы («europe/amsterdam», «Asia baku»).
func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
