package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
)

// Service обрабатывает задания зеркалирования: отметка в BambooHR и, по концу
// дня, ворклог в Jira. Локальный журнал — источник истины, сюда он только
// копируется; ошибки внешних систем журнал не откатывают.
type Service struct {
	subs    domain.SubscriberRepo
	clock   domain.MirrorClient
	worklog domain.WorklogClient
	notify  domain.Notifier
	log     zerolog.Logger
	timeout time.Duration
}

// NewService создаёт обработчик заданий.
func NewService(
	subs domain.SubscriberRepo,
	clock domain.MirrorClient,
	worklog domain.WorklogClient,
	notify domain.Notifier,
	logger zerolog.Logger,
	timeout time.Duration,
) *Service {
	return &Service{subs: subs, clock: clock, worklog: worklog, notify: notify, log: logger, timeout: timeout}
}

// Process выполняет одно задание. Возвращённая ошибка означает сбой самого
// обработчика; отказ внешней системы сообщается подписчику и заданием
// считается завершённым.
func (s *Service) Process(ctx context.Context, job domain.MirrorJob) error {
	sub, err := s.subs.Get(job.TGUserID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriberNotFound) {
			// подписчик отписался, пока задание лежало в очереди
			metrics.IncMirrorJob("orphan")
			return nil
		}
		return fmt.Errorf("получение подписчика: %w", err)
	}

	if sub.Bamboo != nil {
		s.mirrorClockAction(ctx, sub, job)
	}
	if job.Action == domain.ActionDayOut && sub.Jira != nil {
		s.mirrorWorklog(ctx, sub, job)
	}
	return nil
}

// mirrorClockAction копирует отметку в учёт времени.
func (s *Service) mirrorClockAction(ctx context.Context, sub domain.Subscriber, job domain.MirrorJob) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.clock.PerformClockAction(reqCtx, *sub.Bamboo, job.Action); err != nil {
		metrics.IncMirrorJob("clock_error")
		s.log.Error().Err(err).Int64("user", sub.TGUserID).Str("action", string(job.Action)).
			Str("job", job.ID).Msg("не удалось отразить отметку во внешней системе")
		s.notifyFailure(sub.TGUserID, fmt.Sprintf("⚠️ Не удалось отразить %s во внешней системе учёта. Отметка сохранена локально.", job.Action))
		return
	}
	metrics.IncMirrorJob("clock_ok")
}

// mirrorWorklog пишет отработанное за день время в Jira.
func (s *Service) mirrorWorklog(ctx context.Context, sub domain.Subscriber, job domain.MirrorJob) {
	loc := sub.Location()
	worked, ok := sub.WorkedToday(loc, job.At)
	if !ok {
		// дневные отметки неполны, ворклог не из чего считать
		metrics.IncMirrorJob("worklog_skipped")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := sub.Log[domain.ActionDayIn].In(loc)
	if err := s.worklog.AddWorklog(reqCtx, *sub.Jira, started, worked); err != nil {
		metrics.IncMirrorJob("worklog_error")
		s.log.Error().Err(err).Int64("user", sub.TGUserID).Str("job", job.ID).
			Msg("не удалось записать ворклог")
		s.notifyFailure(sub.TGUserID, "⚠️ Не удалось записать ворклог в Jira. Отметки сохранены локально.")
		return
	}
	metrics.IncMirrorJob("worklog_ok")
}

func (s *Service) notifyFailure(chatID int64, text string) {
	if s.notify == nil {
		return
	}
	if err := s.notify.SendText(chatID, text); err != nil {
		s.log.Warn().Err(err).Int64("user", chatID).Msg("не удалось сообщить о сбое зеркалирования")
	}
}
