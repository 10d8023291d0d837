package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
	"kc-checkin-bot/internal/usecase/checkin"
)

// Loop — периодический цикл оценки. Каждый тик перечитывает всех подписчиков
// и прогоняет каждого через диспетчер. Сбой одного подписчика не прерывает
// проход.
type Loop struct {
	svc      *Service
	checkins *checkin.Service
	subs     domain.SubscriberRepo
	mirror   domain.MirrorClient
	cache    domain.Cache
	log      zerolog.Logger

	interval      time.Duration
	statusTTL     time.Duration
	mirrorTimeout time.Duration
}

// NewLoop создаёт цикл. mirror и cache могут быть nil — тогда статус внешней
// системы не обновляется.
func NewLoop(
	svc *Service,
	checkins *checkin.Service,
	subs domain.SubscriberRepo,
	mirror domain.MirrorClient,
	cache domain.Cache,
	logger zerolog.Logger,
	interval, statusTTL, mirrorTimeout time.Duration,
) *Loop {
	return &Loop{
		svc:           svc,
		checkins:      checkins,
		subs:          subs,
		mirror:        mirror,
		cache:         cache,
		log:           logger,
		interval:      interval,
		statusTTL:     statusTTL,
		mirrorTimeout: mirrorTimeout,
	}
}

// Run крутит цикл до отмены контекста. Первый проход выполняется сразу.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("цикл напоминаний остановлен")
			return
		case <-ticker.C:
			l.pass(ctx)
		}
	}
}

// pass — один проход по всем подписчикам.
func (l *Loop) pass(ctx context.Context) {
	start := time.Now()
	subs, err := l.subs.ListAll()
	if err != nil {
		l.log.Error().Err(err).Msg("не удалось перечитать подписчиков")
		return
	}
	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		l.evaluateOne(ctx, sub)
	}
	metrics.ObserveEvaluationPass(time.Since(start), len(subs))
}

// evaluateOne обрабатывает одного подписчика, гася панику, чтобы битая запись
// не валила весь проход.
func (l *Loop) evaluateOne(ctx context.Context, sub domain.Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberFailuresTotal.Inc()
			l.log.Error().Int64("user", sub.TGUserID).Interface("panic", r).
				Msg("паника при оценке подписчика")
		}
	}()

	l.refreshMirrorStatus(ctx, sub)

	if err := l.svc.EvaluateAndDispatch(sub.TGUserID); err != nil {
		metrics.SubscriberFailuresTotal.Inc()
		l.log.Error().Err(err).Int64("user", sub.TGUserID).Msg("ошибка оценки подписчика")
	}
}

// refreshMirrorStatus подтягивает статус из внешней системы не чаще, чем раз
// в statusTTL на подписчика. Троттлинг общий для всех экземпляров через Redis.
func (l *Loop) refreshMirrorStatus(ctx context.Context, sub domain.Subscriber) {
	if l.mirror == nil || l.cache == nil || sub.Bamboo == nil {
		return
	}
	key := fmt.Sprintf("mirror_status:%d", sub.TGUserID)
	err := l.cache.Once(key, l.statusTTL, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, l.mirrorTimeout)
		defer cancel()

		status, err := l.mirror.RefreshStatus(reqCtx, *sub.Bamboo)
		if err != nil {
			return fmt.Errorf("статус внешней системы: %w", err)
		}
		return l.checkins.SetMirrorStatus(sub.TGUserID, status, time.Now())
	})
	if err != nil {
		l.log.Warn().Err(err).Int64("user", sub.TGUserID).Msg("не удалось обновить зеркальный статус")
	}
}
