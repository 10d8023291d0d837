package domain

import (
	"testing"
	"time"
)

// monSchedule — Mon=09:00,13:00,18:00 из сценариев приёмки.
func monSchedule() DaySchedule {
	return DaySchedule{DayIn: 9 * 60, LunchOut: 13 * 60, DayOut: 18 * 60}
}

// утро понедельника в UTC
func mondayAt(h, m int) time.Time {
	return time.Date(2024, 3, 11, h, m, 0, 0, time.UTC)
}

func TestDecideScenarioADayIn(t *testing.T) {
	// Понедельник 09:05, журнал пуст — ждём dayin.
	now := mondayAt(9, 5)
	status := EvaluateDay(ActionLog{}, time.UTC, now)
	action, ok := Decide(monSchedule(), status, time.Time{}, now, time.UTC)
	if !ok || action != ActionDayIn {
		t.Fatalf("ожидали dayin, получили %q (ok=%v)", action, ok)
	}
}

func TestDecideScenarioBLunchOut(t *testing.T) {
	// dayin отмечен в 09:10, сейчас 13:05 — ждём lunchout.
	now := mondayAt(13, 5)
	log := ActionLog{ActionDayIn: mondayAt(9, 10)}
	status := EvaluateDay(log, time.UTC, now)
	action, ok := Decide(monSchedule(), status, log[ActionLunchOut], now, time.UTC)
	if !ok || action != ActionLunchOut {
		t.Fatalf("ожидали lunchout, получили %q (ok=%v)", action, ok)
	}
}

func TestDecideScenarioCLunchTooShort(t *testing.T) {
	// lunchout в 13:10, сейчас 13:40 — полчаса, напоминать рано.
	now := mondayAt(13, 40)
	log := ActionLog{
		ActionDayIn:    mondayAt(9, 10),
		ActionLunchOut: mondayAt(13, 10),
	}
	status := EvaluateDay(log, time.UTC, now)
	if _, ok := Decide(monSchedule(), status, log[ActionLunchOut], now, time.UTC); ok {
		t.Fatal("минимальный обед ещё не истёк, напоминания быть не должно")
	}
}

func TestDecideScenarioDLunchIn(t *testing.T) {
	// lunchout в 13:10, сейчас 14:15 — 65 минут, ждём lunchin.
	now := mondayAt(14, 15)
	log := ActionLog{
		ActionDayIn:    mondayAt(9, 10),
		ActionLunchOut: mondayAt(13, 10),
	}
	status := EvaluateDay(log, time.UTC, now)
	action, ok := Decide(monSchedule(), status, log[ActionLunchOut], now, time.UTC)
	if !ok || action != ActionLunchIn {
		t.Fatalf("ожидали lunchin, получили %q (ok=%v)", action, ok)
	}
}

func TestDecideScenarioEDayOut(t *testing.T) {
	// Три отметки есть, 18:05 — ждём dayout; после отметки — тишина.
	now := mondayAt(18, 5)
	log := ActionLog{
		ActionDayIn:    mondayAt(9, 10),
		ActionLunchOut: mondayAt(13, 10),
		ActionLunchIn:  mondayAt(14, 20),
	}
	status := EvaluateDay(log, time.UTC, now)
	action, ok := Decide(monSchedule(), status, log[ActionLunchOut], now, time.UTC)
	if !ok || action != ActionDayOut {
		t.Fatalf("ожидали dayout, получили %q (ok=%v)", action, ok)
	}

	log[ActionDayOut] = mondayAt(18, 7)
	status = EvaluateDay(log, time.UTC, mondayAt(18, 10))
	if _, ok := Decide(monSchedule(), status, log[ActionLunchOut], mondayAt(18, 10), time.UTC); ok {
		t.Fatal("после dayout напоминаний быть не должно")
	}
}

func TestDecideBeforeDayInTime(t *testing.T) {
	now := mondayAt(8, 30)
	status := EvaluateDay(ActionLog{}, time.UTC, now)
	if _, ok := Decide(monSchedule(), status, time.Time{}, now, time.UTC); ok {
		t.Fatal("до планового времени dayin напоминания быть не должно")
	}
}

func TestDecideMinLunchIndependentOfSchedule(t *testing.T) {
	// Плановое время dayout давно прошло, но lunchin не отмечен и обед короче
	// часа: правило минимального обеда не зависит от недельного расписания.
	sched := DaySchedule{DayIn: 9 * 60, LunchOut: 13 * 60, DayOut: 14 * 60}
	now := mondayAt(13, 50)
	log := ActionLog{
		ActionDayIn:    mondayAt(9, 0),
		ActionLunchOut: mondayAt(13, 5),
	}
	status := EvaluateDay(log, time.UTC, now)
	if _, ok := Decide(sched, status, log[ActionLunchOut], now, time.UTC); ok {
		t.Fatal("lunchin не может стать ожидающим раньше lunchout+1ч")
	}
}

func TestDecidePrecedenceLastRuleWins(t *testing.T) {
	// Рассогласованный журнал: отмечено всё, кроме dayout. Побеждает
	// последнее истинное правило — dayout, и результат ровно один.
	now := mondayAt(19, 0)
	log := ActionLog{
		ActionDayIn:    mondayAt(9, 0),
		ActionLunchOut: mondayAt(13, 0),
		ActionLunchIn:  mondayAt(14, 10),
	}
	status := EvaluateDay(log, time.UTC, now)
	action, ok := Decide(monSchedule(), status, log[ActionLunchOut], now, time.UTC)
	if !ok || action != ActionDayOut {
		t.Fatalf("ожидали единственный результат dayout, получили %q", action)
	}
}

func TestDecideLocalTimezoneThreshold(t *testing.T) {
	// 05:30 UTC — это 09:30 в Баку: порог dayin уже пройден по местному времени.
	baku, err := time.LoadLocation("Asia/Baku")
	if err != nil {
		t.Fatalf("не удалось загрузить зону: %v", err)
	}
	now := mondayAt(5, 30)
	status := EvaluateDay(ActionLog{}, baku, now)
	action, ok := Decide(monSchedule(), status, time.Time{}, now, baku)
	if !ok || action != ActionDayIn {
		t.Fatalf("порог должен сравниваться в зоне подписчика, получили %q (ok=%v)", action, ok)
	}
}
