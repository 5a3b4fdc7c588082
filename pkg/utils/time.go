package utils

import (
	"fmt"
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Вспомогательные функции для временных окон алертов:
// границы календарного дня в часовом поясе пользователя (дневной лимит
// срабатываний), окна времени суток (окно вычисления алерта, тихие часы).
//
// Окна задаются строками "HH:MM" и могут переходить через полночь
// (тихие часы 22:00 - 07:00).

// ============================================================
// Границы дня
// ============================================================

// GetDayStartIn возвращает начало календарного дня (00:00:00) для
// указанного момента в указанном часовом поясе.
//
// Используется для дневного лимита срабатываний: счетчик событий
// считается от начала дня в часовом поясе владельца алерта.
func GetDayStartIn(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// GetDayStart возвращает начало текущего дня в UTC
func GetDayStart() time.Time {
	return GetDayStartIn(time.Now(), time.UTC)
}

// LocationOrUTC загружает IANA часовой пояс, возвращая UTC при
// пустом имени или ошибке загрузки. Невалидный пояс пользователя
// не должен ронять цикл вычисления.
func LocationOrUTC(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ============================================================
// Окна времени суток ("HH:MM")
// ============================================================

// ParseClock разбирает строку "HH:MM" в минуты от полуночи
func ParseClock(s string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("invalid clock %q: expected HH:MM", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid clock %q: out of range", s)
	}
	return hh*60 + mm, nil
}

// MinutesOfDay возвращает минуты от полуночи для момента t
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// InClockWindow проверяет, попадает ли момент t в окно [start, end).
//
// Окно задается строками "HH:MM". Если start > end, окно считается
// переходящим через полночь: 22:00 - 07:00 покрывает 22:00-23:59 и
// 00:00-06:59. Пустые start и end означают отсутствие окна (true).
// Невалидные границы трактуются как отсутствие окна.
func InClockWindow(t time.Time, start, end string) bool {
	if start == "" || end == "" {
		return true
	}

	s, err := ParseClock(start)
	if err != nil {
		return true
	}
	e, err := ParseClock(end)
	if err != nil {
		return true
	}

	m := MinutesOfDay(t)

	if s == e {
		return true // вырожденное окно = весь день
	}
	if s < e {
		return m >= s && m < e
	}
	// Переход через полночь
	return m >= s || m < e
}

// NextClockOccurrence возвращает ближайший момент (>= from), когда
// локальное время в loc равно "HH:MM". Используется для time-условий.
func NextClockOccurrence(from time.Time, clock string, loc *time.Location) (time.Time, error) {
	m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	local := from.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), m/60, m%60, 0, 0, loc)
	if candidate.Before(from) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}
