package domain

import (
	"testing"
	"time"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("не удалось загрузить зону %s: %v", name, err)
	}
	return loc
}

func TestDoneTodaySameLocalDate(t *testing.T) {
	loc := mustLocation(t, "Asia/Baku")
	now := time.Date(2024, 3, 11, 10, 0, 0, 0, loc).UTC()
	ts := time.Date(2024, 3, 11, 9, 5, 0, 0, loc).UTC()
	if !DoneToday(ts, loc, now) {
		t.Fatal("отметка того же местного дня должна считаться сегодняшней")
	}
}

func TestDoneTodayFlipsAtLocalMidnight(t *testing.T) {
	loc := mustLocation(t, "Asia/Baku")
	ts := time.Date(2024, 3, 11, 23, 59, 59, 0, loc).UTC()

	beforeMidnight := time.Date(2024, 3, 11, 23, 59, 59, 0, loc).UTC()
	if !DoneToday(ts, loc, beforeMidnight) {
		t.Fatal("до местной полуночи отметка ещё сегодняшняя")
	}

	afterMidnight := time.Date(2024, 3, 12, 0, 0, 1, 0, loc).UTC()
	if DoneToday(ts, loc, afterMidnight) {
		t.Fatal("после местной полуночи та же отметка уже вчерашняя")
	}
}

func TestDoneTodayIsCalendarNotRolling(t *testing.T) {
	// 23:59 местного дня D и 00:10 дня D+1 — разные дни, хотя прошло 11 минут.
	loc := mustLocation(t, "Europe/Amsterdam")
	dayIn := time.Date(2024, 5, 20, 23, 59, 0, 0, loc).UTC()
	now := time.Date(2024, 5, 21, 0, 10, 0, 0, loc).UTC()
	if DoneToday(dayIn, loc, now) {
		t.Fatal("граница дня — календарная дата, не 24 часа")
	}
}

func TestDoneTodayZeroTimeNeverToday(t *testing.T) {
	if DoneToday(time.Time{}, time.UTC, time.Now()) {
		t.Fatal("нулевое время никогда не бывает сегодняшним")
	}
}

func TestEvaluateDay(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)
	log := ActionLog{
		ActionDayIn:    time.Date(2024, 3, 11, 9, 10, 0, 0, time.UTC),
		ActionLunchOut: time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC), // вчера
	}
	status := EvaluateDay(log, loc, now)
	if !status.DayIn {
		t.Fatal("dayin отмечен сегодня")
	}
	if status.LunchOut {
		t.Fatal("вчерашний lunchout не должен считаться сегодняшним")
	}
	if status.LunchIn || status.DayOut {
		t.Fatal("отсутствующие отметки не должны считаться сегодняшними")
	}
}

func TestEvaluateDayTimezoneMatters(t *testing.T) {
	// 22:00 UTC 11-го — это уже 12-е в Баку (UTC+4).
	baku := mustLocation(t, "Asia/Baku")
	ts := time.Date(2024, 3, 11, 22, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 11, 23, 0, 0, 0, time.UTC)

	if !DoneToday(ts, time.UTC, now) {
		t.Fatal("по UTC отметка сегодняшняя")
	}
	if !DoneToday(ts, baku, now) {
		t.Fatal("в Баку обе точки приходятся на 12-е число")
	}

	laterUTC := time.Date(2024, 3, 12, 1, 0, 0, 0, time.UTC)
	if DoneToday(ts, time.UTC, laterUTC) {
		t.Fatal("по UTC наступил новый день")
	}
	if !DoneToday(ts, baku, laterUTC) {
		t.Fatal("в Баку всё ещё 12-е: отметка остаётся сегодняшней")
	}
}
