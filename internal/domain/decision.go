package domain

import "time"

// Decide выбирает не более одного ожидающего события на цикл. Правила
// упорядочены; побеждает последнее истинное. Так как условие каждого правила
// требует выполненности предыдущего события, при согласованном журнале
// одновременно истинно не больше одного, и диспетчер структурно не может
// получить два события за цикл.
func Decide(sched DaySchedule, status DayStatus, lunchOutAt time.Time, now time.Time, loc *time.Location) (Action, bool) {
	local := now.In(loc)
	tod := TimeOfDay(local.Hour()*60 + local.Minute())

	rules := []struct {
		action Action
		due    bool
	}{
		{ActionDayIn, !status.DayIn && tod >= sched.DayIn},
		{ActionLunchOut, status.DayIn && !status.LunchOut && tod >= sched.LunchOut},
		{ActionLunchIn, status.DayIn && status.LunchOut && !status.LunchIn &&
			!lunchOutAt.IsZero() && !now.Before(lunchOutAt.Add(MinLunchDuration))},
		{ActionDayOut, status.DayIn && status.LunchOut && status.LunchIn && !status.DayOut && tod >= sched.DayOut},
	}

	var pending Action
	found := false
	for _, rule := range rules {
		if rule.due {
			pending = rule.action
			found = true
		}
	}
	return pending, found
}
