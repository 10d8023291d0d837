package bot

import (
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"kc-checkin-bot/internal/adapters/telegram"
	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
)

var _ domain.Notifier = (*Messenger)(nil)

// Messenger реализует domain.Notifier поверх Bot API.
type Messenger struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

// NewMessenger создаёт отправитель.
func NewMessenger(bot *tgbotapi.BotAPI, logger zerolog.Logger) *Messenger {
	return &Messenger{bot: bot, log: logger}
}

// SendReminder отправляет напоминание с кнопкой отметки и возвращает
// идентификатор сообщения для последующего отзыва.
func (m *Messenger) SendReminder(chatID int64, action domain.Action) (int, error) {
	msg := tgbotapi.NewMessage(chatID, reminderText(action))
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Отметить", fmt.Sprintf("ack:%s", action)),
		),
	)
	msg.ReplyMarkup = markup

	start := time.Now()
	sent, err := m.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_reminder", metrics.FormatUserID(chatID), start, err)
	if err != nil {
		return 0, m.classify(err)
	}
	return sent.MessageID, nil
}

// DeleteMessage удаляет ранее отправленное напоминание.
func (m *Messenger) DeleteMessage(chatID int64, messageID int) error {
	start := time.Now()
	_, err := m.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	metrics.ObserveNetworkRequest("telegram_bot", "delete_message", metrics.FormatUserID(chatID), start, err)
	if err != nil {
		return fmt.Errorf("удаление сообщения: %w", err)
	}
	return nil
}

// SendText отправляет обычное сообщение, разбивая длинный текст на части.
func (m *Messenger) SendText(chatID int64, text string) error {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := m.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", metrics.FormatUserID(chatID), start, err)
		if err != nil {
			return m.classify(err)
		}
	}
	return nil
}

// classify отделяет окончательную недоставляемость (бот заблокирован,
// аккаунт удалён) от временных ошибок транспорта.
func (m *Messenger) classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return fmt.Errorf("%w: %s", domain.ErrRecipientUnreachable, apiErr.Message)
	}
	return fmt.Errorf("отправка сообщения: %w", err)
}
