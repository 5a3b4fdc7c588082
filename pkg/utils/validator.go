package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// validator.go - валидация входных данных
//
// Проверка полей алертов и настроек уведомлений на границе API.
// Возвращает error с описанием проблемы или nil.

// Ошибки валидации
var (
	ErrEmptySymbol     = errors.New("symbol cannot be empty")
	ErrInvalidSymbol   = errors.New("symbol must be 1-20 uppercase letters, digits or underscores")
	ErrInvalidTimezone = errors.New("invalid IANA timezone")
	ErrInvalidEmail    = errors.New("invalid email address")
)

var (
	symbolRe = regexp.MustCompile(`^[A-Z0-9_]{1,20}$`)
	emailRe  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateSymbol проверяет формат торгового символа (NIFTY, BANKNIFTY)
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return ErrEmptySymbol
	}
	if !symbolRe.MatchString(symbol) {
		return ErrInvalidSymbol
	}
	return nil
}

// ValidateClock проверяет строку времени суток "HH:MM"
func ValidateClock(s string) error {
	_, err := ParseClock(s)
	return err
}

// ValidateTimezone проверяет, что строка является валидным IANA поясом
func ValidateTimezone(name string) error {
	if name == "" {
		return nil // пустой = UTC
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ErrInvalidTimezone
	}
	return nil
}

// ValidateEmail проверяет базовый формат email адреса
func ValidateEmail(email string) error {
	if !emailRe.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateOperator проверяет оператор сравнения условия
func ValidateOperator(op string) error {
	switch op {
	case ">=", "<=", "==", "crosses_above", "crosses_below":
		return nil
	default:
		return fmt.Errorf("unknown operator %q", op)
	}
}

// NormalizeChannel приводит имя канала к нижнему регистру без пробелов
func NormalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}
