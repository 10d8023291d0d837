package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTime возвращается при некорректном времени формата ЧЧ:ММ.
var ErrInvalidTime = errors.New("некорректное время")

// ErrInvalidSchedule возвращается при некорректной строке расписания.
var ErrInvalidSchedule = errors.New("некорректная строка расписания")

// TimeOfDay — минуты с полуночи по местному времени подписчика.
type TimeOfDay int

// ParseTimeOfDay парсит время формата ЧЧ:ММ.
func ParseTimeOfDay(input string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(input), ":", 2)
	if len(parts) != 2 {
		return 0, ErrInvalidTime
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, ErrInvalidTime
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, ErrInvalidTime
	}
	return TimeOfDay(h*60 + m), nil
}

// String возвращает время в формате ЧЧ:ММ.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON сериализует время как строку ЧЧ:ММ.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON принимает строку ЧЧ:ММ.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DaySchedule — ожидаемые местные времена отметок на один день недели.
// У lunchin планового времени нет: действует только правило минимального обеда.
type DaySchedule struct {
	DayIn    TimeOfDay `json:"day_in"`
	LunchOut TimeOfDay `json:"lunch_out"`
	DayOut   TimeOfDay `json:"day_out"`
}

// WeeklySchedule — ровно семь слотов, индекс 0 — понедельник (ISO).
// Пустой слот означает «в этот день расписания нет».
type WeeklySchedule [7]*DaySchedule

// ForWeekday возвращает расписание на день недели Go или false, если слот пуст.
func (w WeeklySchedule) ForWeekday(wd time.Weekday) (DaySchedule, bool) {
	idx := isoIndex(wd)
	if w[idx] == nil {
		return DaySchedule{}, false
	}
	return *w[idx], true
}

// isoIndex переводит time.Weekday (воскресенье = 0) в индекс ISO (понедельник = 0).
func isoIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// UnmarshalJSON разбирает массив слотов, терпимо к мусору: битый слот или
// неверная длина массива вырождаются в «нет расписания», а не в ошибку.
func (w *WeeklySchedule) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*w = WeeklySchedule{}
		return nil
	}
	var parsed WeeklySchedule
	for i := 0; i < len(raw) && i < 7; i++ {
		if string(raw[i]) == "null" {
			continue
		}
		var slot DaySchedule
		if err := json.Unmarshal(raw[i], &slot); err != nil {
			continue
		}
		parsed[i] = &slot
	}
	*w = parsed
	return nil
}

// weekdayNames сопоставляет ввод пользователя индексу ISO.
var weekdayNames = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
	"пн": 0, "вт": 1, "ср": 2, "чт": 3, "пт": 4, "сб": 5, "вс": 6,
}

// WeekdayLabel возвращает короткое имя дня по индексу ISO.
func WeekdayLabel(idx int) string {
	labels := [7]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}
	if idx < 0 || idx > 6 {
		return "?"
	}
	return labels[idx]
}

// ParseScheduleLine разбирает строку вида «Mon=09:00,13:00,18:00» в индекс ISO
// и слот. «Mon=-» очищает слот (возвращается nil).
func ParseScheduleLine(line string) (int, *DaySchedule, error) {
	parts := strings.SplitN(strings.TrimSpace(line), "=", 2)
	if len(parts) != 2 {
		return 0, nil, ErrInvalidSchedule
	}
	idx, ok := weekdayNames[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return 0, nil, fmt.Errorf("%w: неизвестный день недели %q", ErrInvalidSchedule, parts[0])
	}
	value := strings.TrimSpace(parts[1])
	if value == "-" || value == "" {
		return idx, nil, nil
	}
	times := strings.Split(value, ",")
	if len(times) != 3 {
		return 0, nil, fmt.Errorf("%w: нужно три времени через запятую", ErrInvalidSchedule)
	}
	var slot DaySchedule
	for i, ptr := range []*TimeOfDay{&slot.DayIn, &slot.LunchOut, &slot.DayOut} {
		parsed, err := ParseTimeOfDay(times[i])
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, times[i])
		}
		*ptr = parsed
	}
	return idx, &slot, nil
}
