package reminder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
	"kc-checkin-bot/internal/usecase/checkin"
)

// ledgerEntry — живое напоминание подписчика: какое событие и каким
// сообщением оно отправлено.
type ledgerEntry struct {
	action    domain.Action
	messageID int
}

// Service решает, какое напоминание должно стоять у подписчика, и держит его
// единственным: перед повторной отправкой того же события старое сообщение
// отзывается. Реестр живёт в памяти процесса и пуст после рестарта.
type Service struct {
	subs     domain.SubscriberRepo
	notifier domain.Notifier
	locks    *checkin.Locks
	log      zerolog.Logger

	mu     sync.Mutex
	ledger map[int64]ledgerEntry

	now func() time.Time
}

// NewService создаёт диспетчер напоминаний.
func NewService(subs domain.SubscriberRepo, notifier domain.Notifier, locks *checkin.Locks, logger zerolog.Logger) *Service {
	return &Service{
		subs:     subs,
		notifier: notifier,
		locks:    locks,
		log:      logger,
		ledger:   map[int64]ledgerEntry{},
		now:      time.Now,
	}
}

// EvaluateAndDispatch перечитывает запись подписчика, вычисляет ожидающее
// событие и приводит живое напоминание к нему. Вызывается и периодическим
// циклом, и сразу после отметки.
func (s *Service) EvaluateAndDispatch(tgUserID int64) error {
	mu := s.locks.Of(tgUserID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := s.subs.Get(tgUserID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriberNotFound) {
			s.dropEntry(tgUserID)
			return nil
		}
		return fmt.Errorf("получение подписчика: %w", err)
	}

	now := s.now()
	loc := sub.Location()
	sched, ok := sub.Schedule.ForWeekday(now.In(loc).Weekday())
	if !ok {
		// выходной или незаполненный день: ничего не напоминаем
		return nil
	}

	status := domain.EvaluateDay(sub.Log, loc, now)
	var lunchOutAt time.Time
	if status.LunchOut {
		lunchOutAt = sub.Log[domain.ActionLunchOut]
	}
	action, due := domain.Decide(sched, status, lunchOutAt, now, loc)
	if !due {
		return nil
	}
	return s.dispatch(sub.TGUserID, action)
}

// dispatch отправляет напоминание и обновляет реестр. Если по подписчику уже
// висит напоминание о том же событии, старое сообщение сначала отзывается,
// чтобы живым оставалось ровно одно.
func (s *Service) dispatch(tgUserID int64, action domain.Action) error {
	s.mu.Lock()
	prev, hadPrev := s.ledger[tgUserID]
	s.mu.Unlock()

	if hadPrev && prev.action == action {
		if err := s.notifier.DeleteMessage(tgUserID, prev.messageID); err != nil {
			s.log.Warn().Err(err).Int64("user", tgUserID).Int("message_id", prev.messageID).
				Msg("не удалось отозвать старое напоминание")
		} else {
			metrics.IncReminderRetracted(string(action))
		}
	}

	messageID, err := s.notifier.SendReminder(tgUserID, action)
	if err != nil {
		if errors.Is(err, domain.ErrRecipientUnreachable) {
			return s.evict(tgUserID)
		}
		return fmt.Errorf("отправка напоминания: %w", err)
	}

	s.mu.Lock()
	s.ledger[tgUserID] = ledgerEntry{action: action, messageID: messageID}
	s.mu.Unlock()
	metrics.IncReminderSent(string(action))
	return nil
}

// evict удаляет подписчика, до которого сообщения больше не доходят: бот
// заблокирован или аккаунт удалён.
func (s *Service) evict(tgUserID int64) error {
	s.log.Info().Int64("user", tgUserID).Msg("получатель недоступен, снимаем подписку")
	if err := s.subs.Delete(tgUserID); err != nil {
		return fmt.Errorf("удаление недоступного подписчика: %w", err)
	}
	s.dropEntry(tgUserID)
	s.locks.Forget(tgUserID)
	return nil
}

// Forget убирает запись реестра, например при отписке.
func (s *Service) Forget(tgUserID int64) {
	s.dropEntry(tgUserID)
}

func (s *Service) dropEntry(tgUserID int64) {
	s.mu.Lock()
	delete(s.ledger, tgUserID)
	s.mu.Unlock()
}
