package engine

import "alertd/internal/models"

// ValidTransitions определяет допустимые переходы между статусами алерта
//
// triggered - терминальный статус one-shot алертов: обратно в active пути нет,
// владелец может только удалить. deleted терминален полностью
var ValidTransitions = map[string][]string{
	models.AlertStatusActive:    {models.AlertStatusPaused, models.AlertStatusTriggered, models.AlertStatusExpired, models.AlertStatusDeleted},
	models.AlertStatusPaused:    {models.AlertStatusActive, models.AlertStatusExpired, models.AlertStatusDeleted},
	models.AlertStatusTriggered: {models.AlertStatusDeleted},
	models.AlertStatusExpired:   {models.AlertStatusDeleted},
	models.AlertStatusDeleted:   {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatusInfo возвращает описание статуса для UI
func StatusInfo(s string) string {
	switch s {
	case models.AlertStatusActive:
		return "Алерт активен (вычисляется движком)"
	case models.AlertStatusPaused:
		return "Алерт приостановлен владельцем"
	case models.AlertStatusTriggered:
		return "One-shot алерт сработал"
	case models.AlertStatusExpired:
		return "Срок действия алерта истек"
	case models.AlertStatusDeleted:
		return "Алерт удален"
	default:
		return "Неизвестный статус"
	}
}
