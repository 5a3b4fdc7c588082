package engine

import (
	"time"

	"alertd/internal/models"
	"alertd/pkg/utils"
)

// Причины пропуска оценки алерта в цикле
const (
	SkipReasonInterval = "interval" // не прошел evaluation_interval с прошлой оценки
	SkipReasonWindow   = "window"   // текущее время вне окна оценки
)

// ShouldEvaluate проверяет, подлежит ли активный алерт оценке сейчас
//
// Порядок проверок фиксирован:
//  1. каданс: прошло ли evaluation_interval секунд с last_evaluated_at
//  2. окно оценки: локальное время (loc - таймзона владельца) внутри
//     [eval_window_start, eval_window_end], окно может переходить через полночь
//
// Пропуск по любой причине не продвигает last_evaluated_at
func ShouldEvaluate(alert *models.Alert, now time.Time, loc *time.Location) (bool, string) {
	if alert.LastEvaluatedAt != nil {
		next := alert.LastEvaluatedAt.Add(time.Duration(alert.EvaluationInterval) * time.Second)
		if now.Before(next) {
			return false, SkipReasonInterval
		}
	}

	if alert.EvalWindowStart != nil && alert.EvalWindowEnd != nil {
		if !utils.InClockWindow(now.In(loc), *alert.EvalWindowStart, *alert.EvalWindowEnd) {
			return false, SkipReasonWindow
		}
	}

	return true, ""
}

// InQuietHours проверяет, попадает ли момент now в тихие часы пользователя
// Окно интерпретируется в таймзоне настроек и может переходить через полночь
func InQuietHours(pref *models.NotificationPreference, now time.Time) bool {
	if pref.QuietHoursStart == nil || pref.QuietHoursEnd == nil {
		return false
	}

	loc := utils.LocationOrUTC(pref.Timezone)
	return utils.InClockWindow(now.In(loc), *pref.QuietHoursStart, *pref.QuietHoursEnd)
}
