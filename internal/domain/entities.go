package domain

import "time"

// Action — одно из четырёх дневных событий учёта времени.
type Action string

const (
	// ActionDayIn — начало рабочего дня.
	ActionDayIn Action = "dayin"
	// ActionLunchOut — уход на обед.
	ActionLunchOut Action = "lunchout"
	// ActionLunchIn — возвращение с обеда.
	ActionLunchIn Action = "lunchin"
	// ActionDayOut — конец рабочего дня.
	ActionDayOut Action = "dayout"
)

// Actions перечисляет события в естественном порядке дня.
var Actions = []Action{ActionDayIn, ActionLunchOut, ActionLunchIn, ActionDayOut}

// Valid сообщает, известно ли событие.
func (a Action) Valid() bool {
	switch a {
	case ActionDayIn, ActionLunchOut, ActionLunchIn, ActionDayOut:
		return true
	}
	return false
}

// MinLunchDuration — минимальная длительность обеда до напоминания о
// возвращении. Константа, по подписчикам не настраивается.
const MinLunchDuration = time.Hour

// ActionLog — «карточка дня»: последняя отметка по каждому событию в UTC.
// История не хранится, только последний момент на событие.
type ActionLog map[Action]time.Time

// BambooCredential — доступ к учёту времени BambooHR. Ядро не интерпретирует
// содержимое, им пользуется только зеркальный адаптер.
type BambooCredential struct {
	Company    string `json:"company"`
	EmployeeID string `json:"employee_id"`
	APIKey     string `json:"api_key"`
}

// JiraCredential — доступ к ворклогам Jira.
type JiraCredential struct {
	BaseURL  string `json:"base_url"`
	IssueKey string `json:"issue_key"`
	Email    string `json:"email"`
	APIToken string `json:"api_token"`
}

// Subscriber описывает подписчика бота.
type Subscriber struct {
	TGUserID  int64
	Username  string
	FirstName string
	LastName  string
	Timezone  string
	Schedule  WeeklySchedule
	Log       ActionLog

	Bamboo *BambooCredential
	Jira   *JiraCredential

	// MirrorStatus — последний статус из внешней системы, только для показа.
	MirrorStatus    string
	MirrorCheckedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location возвращает часовой пояс подписчика, по умолчанию UTC.
func (s *Subscriber) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WorkedToday считает отработанное время между dayin и dayout за вычетом
// обеда. Возвращает false, если дневные отметки неполны.
func (s *Subscriber) WorkedToday(loc *time.Location, now time.Time) (time.Duration, bool) {
	status := EvaluateDay(s.Log, loc, now)
	if !status.DayIn || !status.DayOut {
		return 0, false
	}
	worked := s.Log[ActionDayOut].Sub(s.Log[ActionDayIn])
	if status.LunchOut && status.LunchIn {
		lunch := s.Log[ActionLunchIn].Sub(s.Log[ActionLunchOut])
		if lunch > 0 {
			worked -= lunch
		}
	}
	if worked < 0 {
		return 0, false
	}
	return worked, true
}
