package domain

import "time"

// dateLayout — календарная дата для сравнения «сегодня».
const dateLayout = "2006-01-02"

// DayStatus — признаки «отмечено сегодня» по каждому событию.
type DayStatus struct {
	DayIn    bool
	LunchOut bool
	LunchIn  bool
	DayOut   bool
}

// Done возвращает признак по имени события.
func (d DayStatus) Done(a Action) bool {
	switch a {
	case ActionDayIn:
		return d.DayIn
	case ActionLunchOut:
		return d.LunchOut
	case ActionLunchIn:
		return d.LunchIn
	case ActionDayOut:
		return d.DayOut
	}
	return false
}

// DoneToday сообщает, приходится ли отметка на сегодняшний календарный день в
// зоне loc. Граница дня — местная календарная дата, не скользящие 24 часа.
// Нулевое время («никогда») проходит тем же сравнением: его дата никогда не
// равна сегодняшней.
func DoneToday(ts time.Time, loc *time.Location, now time.Time) bool {
	return ts.In(loc).Format(dateLayout) == now.In(loc).Format(dateLayout)
}

// EvaluateDay классифицирует все четыре события журнала относительно
// сегодняшнего местного дня.
func EvaluateDay(log ActionLog, loc *time.Location, now time.Time) DayStatus {
	return DayStatus{
		DayIn:    DoneToday(log[ActionDayIn], loc, now),
		LunchOut: DoneToday(log[ActionLunchOut], loc, now),
		LunchIn:  DoneToday(log[ActionLunchIn], loc, now),
		DayOut:   DoneToday(log[ActionDayOut], loc, now),
	}
}
