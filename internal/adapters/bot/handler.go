package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"kc-checkin-bot/internal/adapters/telegram"
	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
	"kc-checkin-bot/internal/usecase/checkin"
	"kc-checkin-bot/internal/usecase/reminder"
)

// pendingKind — какой ввод бот ждёт от пользователя следующим сообщением.
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingPassword
	pendingTimezone
	pendingSchedule
	pendingBamboo
	pendingJira
)

// Handler обслуживает вебхук бота.
type Handler struct {
	bot       *tgbotapi.BotAPI
	log       zerolog.Logger
	checkins  *checkin.Service
	reminders *reminder.Service

	mu      sync.Mutex
	pending map[int64]pendingKind
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, logger zerolog.Logger, checkins *checkin.Service, reminders *reminder.Service) *Handler {
	return &Handler{
		bot:       bot,
		log:       logger,
		checkins:  checkins,
		reminders: reminders,
		pending:   make(map[int64]pendingKind),
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя")
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		if h.tryHandlePendingInput(msg, text) {
			return
		}
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
		return
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		h.reply(msg.Chat.ID, buildStartMessage())
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, buildHelpMessage())
	case strings.HasPrefix(text, "/subscribe"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/subscribe"))
		h.handleSubscribe(msg, payload)
	case strings.HasPrefix(text, "/unsubscribe"):
		h.handleUnsubscribe(msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/dayin"):
		h.recordAction(ctx, msg.Chat.ID, msg.From.ID, domain.ActionDayIn)
	case strings.HasPrefix(text, "/dayout"):
		h.recordAction(ctx, msg.Chat.ID, msg.From.ID, domain.ActionDayOut)
	case strings.HasPrefix(text, "/lunchin"):
		h.recordAction(ctx, msg.Chat.ID, msg.From.ID, domain.ActionLunchIn)
	case strings.HasPrefix(text, "/lunchout"):
		h.recordAction(ctx, msg.Chat.ID, msg.From.ID, domain.ActionLunchOut)
	case strings.HasPrefix(text, "/status"):
		h.handleStatus(msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/reset"):
		h.handleReset(msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/timezone"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/timezone"))
		h.handleTimezone(msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/schedule"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/schedule"))
		h.handleSchedule(msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/bamboo"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/bamboo"))
		h.handleBamboo(msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/jira"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/jira"))
		h.handleJira(msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/cancel"):
		h.clearPending(msg.From.ID)
		h.reply(msg.Chat.ID, "Ввод отменён")
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

// tryHandlePendingInput доводит до конца диалог, начатый командой без
// аргументов: пароль, часовой пояс, строка расписания, учётные данные.
func (h *Handler) tryHandlePendingInput(msg *tgbotapi.Message, text string) bool {
	h.mu.Lock()
	kind := h.pending[msg.From.ID]
	h.mu.Unlock()

	switch kind {
	case pendingPassword:
		h.clearPending(msg.From.ID)
		h.handleSubscribe(msg, text)
	case pendingTimezone:
		h.clearPending(msg.From.ID)
		h.handleTimezone(msg.Chat.ID, msg.From.ID, text)
	case pendingSchedule:
		h.clearPending(msg.From.ID)
		h.handleSchedule(msg.Chat.ID, msg.From.ID, text)
	case pendingBamboo:
		h.clearPending(msg.From.ID)
		h.handleBamboo(msg.Chat.ID, msg.From.ID, text)
	case pendingJira:
		h.clearPending(msg.From.ID)
		h.handleJira(msg.Chat.ID, msg.From.ID, text)
	default:
		return false
	}
	return true
}

func (h *Handler) setPending(tgUserID int64, kind pendingKind) {
	h.mu.Lock()
	h.pending[tgUserID] = kind
	h.mu.Unlock()
}

func (h *Handler) clearPending(tgUserID int64) {
	h.mu.Lock()
	delete(h.pending, tgUserID)
	h.mu.Unlock()
}

func (h *Handler) handleSubscribe(msg *tgbotapi.Message, password string) {
	if password == "" {
		h.setPending(msg.From.ID, pendingPassword)
		h.reply(msg.Chat.ID, "Отправьте пароль подписки")
		return
	}
	profile := checkin.Profile{
		TGUserID:  msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
	if err := h.checkins.Subscribe(profile, password); err != nil {
		switch {
		case errors.Is(err, checkin.ErrWrongPassword):
			h.reply(msg.Chat.ID, "Неверный пароль")
		case errors.Is(err, checkin.ErrAlreadySubscribed):
			h.reply(msg.Chat.ID, "Вы уже подписаны")
		default:
			h.reply(msg.Chat.ID, fmt.Sprintf("Не удалось подписаться: %v", err))
		}
		return
	}
	h.reply(msg.Chat.ID, "Подписка оформлена ✅\nНастройте /timezone и /schedule, чтобы получать напоминания.")
}

func (h *Handler) handleUnsubscribe(chatID, tgUserID int64) {
	if err := h.checkins.Unsubscribe(tgUserID); err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось отписаться: %v", err))
		return
	}
	h.reminders.Forget(tgUserID)
	h.reply(chatID, "Подписка снята, данные удалены")
}

// recordAction фиксирует отметку и сразу пересчитывает напоминание, чтобы
// висящее сообщение не пережило отметку до следующего тика цикла.
func (h *Handler) recordAction(ctx context.Context, chatID, tgUserID int64, action domain.Action) {
	if _, err := h.checkins.RecordAction(ctx, tgUserID, action, time.Now(), domain.MirrorSourceCommand); err != nil {
		h.replyCheckinError(chatID, err)
		return
	}
	h.reply(chatID, ackText(action))
	if err := h.reminders.EvaluateAndDispatch(tgUserID); err != nil {
		h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось пересчитать напоминание после отметки")
	}
}

func (h *Handler) handleStatus(chatID, tgUserID int64) {
	sub, err := h.checkins.Get(tgUserID)
	if err != nil {
		h.replyCheckinError(chatID, err)
		return
	}
	h.reply(chatID, buildStatusMessage(sub, time.Now()))
}

func (h *Handler) handleReset(chatID, tgUserID int64) {
	if _, err := h.checkins.ResetActions(tgUserID); err != nil {
		h.replyCheckinError(chatID, err)
		return
	}
	h.reminders.Forget(tgUserID)
	h.reply(chatID, "Отметки очищены")
}

func (h *Handler) handleTimezone(chatID, tgUserID int64, payload string) {
	if payload == "" {
		h.setPending(tgUserID, pendingTimezone)
		h.reply(chatID, "Отправьте часовой пояс, например Europe/Amsterdam")
		return
	}
	if err := h.checkins.SetTimezone(tgUserID, payload); err != nil {
		if errors.Is(err, checkin.ErrInvalidTimezone) {
			h.reply(chatID, "Неизвестный часовой пояс. Пример: Europe/Amsterdam")
			return
		}
		h.replyCheckinError(chatID, err)
		return
	}
	h.reply(chatID, fmt.Sprintf("Часовой пояс установлен: %s", payload))
}

func (h *Handler) handleSchedule(chatID, tgUserID int64, payload string) {
	if payload == "" {
		sub, err := h.checkins.Get(tgUserID)
		if err != nil {
			h.replyCheckinError(chatID, err)
			return
		}
		h.setPending(tgUserID, pendingSchedule)
		h.reply(chatID, buildScheduleHint(sub))
		return
	}
	idx, slot, err := domain.ParseScheduleLine(payload)
	if err != nil {
		h.reply(chatID, "Некорректная строка. Пример: Mon=09:00,13:00,18:00 или Mon=-")
		return
	}
	if err := h.checkins.SetWeekdaySchedule(tgUserID, idx, slot); err != nil {
		h.replyCheckinError(chatID, err)
		return
	}
	if slot == nil {
		h.reply(chatID, fmt.Sprintf("Расписание на %s очищено", domain.WeekdayLabel(idx)))
		return
	}
	h.reply(chatID, fmt.Sprintf("Расписание на %s: %s / %s / %s",
		domain.WeekdayLabel(idx), slot.DayIn, slot.LunchOut, slot.DayOut))
}

func (h *Handler) handleBamboo(chatID, tgUserID int64, payload string) {
	if payload == "" {
		h.setPending(tgUserID, pendingBamboo)
		h.reply(chatID, "Отправьте данные BambooHR: компания, ID сотрудника и API-ключ через пробел.\nOff — отключить зеркалирование.")
		return
	}
	if strings.EqualFold(payload, "off") {
		if err := h.checkins.ClearBambooCredential(tgUserID); err != nil {
			h.replyCheckinError(chatID, err)
			return
		}
		h.reply(chatID, "Зеркалирование в BambooHR отключено")
		return
	}
	parts := strings.Fields(payload)
	if len(parts) != 3 {
		h.reply(chatID, "Нужно три значения: компания, ID сотрудника, API-ключ")
		return
	}
	cred := domain.BambooCredential{Company: parts[0], EmployeeID: parts[1], APIKey: parts[2]}
	if err := h.checkins.SetBambooCredential(tgUserID, cred); err != nil {
		h.replyCheckinError(chatID, err)
		return
	}
	h.reply(chatID, "BambooHR подключён: отметки будут зеркалироваться")
}

func (h *Handler) handleJira(chatID, tgUserID int64, payload string) {
	if payload == "" {
		h.setPending(tgUserID, pendingJira)
		h.reply(chatID, "Отправьте данные Jira: адрес, ключ задачи, e-mail и API-токен через пробел.\nOff — отключить ворклоги.")
		return
	}
	if strings.EqualFold(payload, "off") {
		if err := h.checkins.ClearJiraCredential(tgUserID); err != nil {
			h.replyCheckinError(chatID, err)
			return
		}
		h.reply(chatID, "Ворклоги Jira отключены")
		return
	}
	parts := strings.Fields(payload)
	if len(parts) != 4 {
		h.reply(chatID, "Нужно четыре значения: адрес, ключ задачи, e-mail, API-токен")
		return
	}
	cred := domain.JiraCredential{BaseURL: parts[0], IssueKey: parts[1], Email: parts[2], APIToken: parts[3]}
	if err := h.checkins.SetJiraCredential(tgUserID, cred); err != nil {
		h.replyCheckinError(chatID, err)
		return
	}
	h.reply(chatID, fmt.Sprintf("Jira подключена: ворклоги пойдут в %s", cred.IssueKey))
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	if strings.HasPrefix(data, "ack:") {
		action := domain.Action(strings.TrimPrefix(data, "ack:"))
		if action.Valid() && cb.Message != nil {
			h.recordAction(ctx, cb.Message.Chat.ID, cb.From.ID, action)
		}
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", metrics.FormatUserID(cb.From.ID), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) replyCheckinError(chatID int64, err error) {
	if errors.Is(err, domain.ErrSubscriberNotFound) {
		h.reply(chatID, "Вы ещё не подписаны. Отправьте /subscribe")
		return
	}
	h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
}

// buildStatusMessage собирает карточку текущего дня в поясе подписчика.
func buildStatusMessage(sub domain.Subscriber, now time.Time) string {
	loc := sub.Location()
	local := now.In(loc)
	status := domain.EvaluateDay(sub.Log, loc, now)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 %s, часовой пояс %s\n\n", local.Format("02.01.2006"), sub.Timezone))

	if sched, ok := sub.Schedule.ForWeekday(local.Weekday()); ok {
		b.WriteString(fmt.Sprintf("Расписание: %s / %s / %s\n\n", sched.DayIn, sched.LunchOut, sched.DayOut))
	} else {
		b.WriteString("Сегодня расписания нет, напоминания не приходят\n\n")
	}

	for _, action := range domain.Actions {
		mark := "—"
		if status.Done(action) {
			mark = sub.Log[action].In(loc).Format("15:04")
		}
		b.WriteString(fmt.Sprintf("%s: %s\n", actionTitles[action], mark))
	}

	if worked, ok := sub.WorkedToday(loc, now); ok {
		b.WriteString(fmt.Sprintf("\nОтработано: %s\n", formatDuration(worked)))
	}
	if sub.Bamboo != nil && sub.MirrorStatus != "" {
		b.WriteString(fmt.Sprintf("\nСтатус BambooHR: %s (на %s)\n",
			sub.MirrorStatus, sub.MirrorCheckedAt.In(loc).Format("15:04")))
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	return fmt.Sprintf("%dч %02dм", int(d.Hours()), int(d.Minutes())%60)
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", metrics.FormatUserID(chatID), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}
