package bot

import (
	"fmt"
	"strings"

	"kc-checkin-bot/internal/domain"
)

// actionTitles — подписи событий в напоминаниях и карточке дня.
var actionTitles = map[domain.Action]string{
	domain.ActionDayIn:    "➡️ 💼 Начало дня",
	domain.ActionLunchOut: "➡️ 🍽 Уход на обед",
	domain.ActionLunchIn:  "↩️ 🍽 Возвращение с обеда",
	domain.ActionDayOut:   "⬅️ 💼 Конец дня",
}

// reminderText — текст напоминания о событии.
func reminderText(action domain.Action) string {
	return fmt.Sprintf("Напоминание: %s!", actionTitles[action])
}

// ackText — подтверждение после отметки.
func ackText(action domain.Action) string {
	return fmt.Sprintf("Отмечено: %s ✔️", actionTitles[action])
}

func buildStartMessage() string {
	lines := []string{
		"👋 Это бот учёта рабочего дня.",
		"",
		"Он напоминает о четырёх событиях — начало дня, уход на обед,",
		"возвращение и конец дня — по вашему расписанию и часовому поясу.",
		"",
		"Начните с команды /subscribe, затем настройте /timezone и /schedule.",
		"Полный список команд: /help.",
	}
	return strings.Join(lines, "\n")
}

func buildHelpMessage() string {
	sections := []string{
		"📖 Команды бота:",
		"",
		"Подписка:",
		"• /subscribe — подписаться (потребуется пароль).",
		"• /unsubscribe — отписаться и удалить данные.",
		"",
		"Отметки:",
		"• /dayin — начало рабочего дня.",
		"• /lunchout — уход на обед.",
		"• /lunchin — возвращение с обеда.",
		"• /dayout — конец рабочего дня.",
		"• /reset — очистить отметки, например после ошибочной.",
		"• /status — карточка текущего дня.",
		"",
		"Настройки:",
		"• /timezone Europe/Amsterdam — часовой пояс.",
		"• /schedule Mon=09:00,13:00,18:00 — расписание дня недели",
		"  (начало, обед, конец); Mon=- очищает день.",
		"• /bamboo — подключить учёт времени BambooHR.",
		"• /jira — подключить ворклоги Jira.",
		"• /cancel — прервать текущий ввод.",
	}
	return strings.Join(sections, "\n")
}

func buildScheduleHint(sub domain.Subscriber) string {
	var b strings.Builder
	b.WriteString("🗓 Текущее расписание:\n")
	for i := 0; i < 7; i++ {
		slot := sub.Schedule[i]
		if slot == nil {
			b.WriteString(fmt.Sprintf("%s: —\n", domain.WeekdayLabel(i)))
			continue
		}
		b.WriteString(fmt.Sprintf("%s: %s / %s / %s\n",
			domain.WeekdayLabel(i), slot.DayIn, slot.LunchOut, slot.DayOut))
	}
	b.WriteString("\nОтправьте строку вида Mon=09:00,13:00,18:00.\n")
	b.WriteString("Mon=- очищает день. Дни без расписания бот пропускает.")
	return b.String()
}
