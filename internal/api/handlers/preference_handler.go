package handlers

import (
	"errors"
	"net/http"

	"alertd/internal/api/middleware"
	"alertd/internal/models"
	"alertd/internal/service"
)

// PreferenceHandler отвечает за настройки доставки уведомлений
//
// Endpoints:
// - GET /api/v1/preferences        - получение настроек пользователя
// - PUT /api/v1/preferences        - обновление настроек
// - POST /api/v1/preferences/token - выпуск нового API токена
type PreferenceHandler struct {
	prefService PreferenceServiceInterface
}

// NewPreferenceHandler создает новый PreferenceHandler с внедрением зависимостей
func NewPreferenceHandler(prefService PreferenceServiceInterface) *PreferenceHandler {
	return &PreferenceHandler{
		prefService: prefService,
	}
}

// PreferenceRequest структура запроса на обновление настроек
type PreferenceRequest struct {
	Channels map[string]models.ChannelSetting `json:"channels"`

	QuietHoursStart *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *string `json:"quiet_hours_end,omitempty"`
	Timezone        string  `json:"timezone"`

	MaxNotificationsPerHour int    `json:"max_notifications_per_hour"`
	PriorityThreshold       int    `json:"priority_threshold"`
	Format                  string `json:"format"`
}

// TokenResponse - новый API токен, возвращается единственный раз
type TokenResponse struct {
	Token string `json:"token"`
}

// GetPreferences возвращает настройки уведомлений пользователя
// GET /api/v1/preferences
//
// Credentials каналов в ответе замаскированы.
// Для пользователя без сохраненных настроек возвращаются значения по умолчанию.
//
// Response:
// - 200 OK: настройки
func (h *PreferenceHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	pref, err := h.prefService.Get(userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, pref)
}

// UpdatePreferences обновляет настройки уведомлений
// PUT /api/v1/preferences
//
// Пустой credential канала сохраняет ранее записанное значение,
// непустой шифруется перед записью.
//
// Request Body:
//
//	{
//	  "channels": {"telegram": {"enabled": true, "address": "123456"}},
//	  "quiet_hours_start": "22:00",
//	  "quiet_hours_end": "07:00",
//	  "timezone": "Asia/Kolkata",
//	  "max_notifications_per_hour": 20,
//	  "priority_threshold": 4,
//	  "format": "detailed"
//	}
//
// Response:
// - 200 OK: настройки сохранены
// - 400 Bad Request: невалидные параметры
func (h *PreferenceHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	var req PreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	pref := &models.NotificationPreference{
		UserID:                  userID,
		Channels:                req.Channels,
		QuietHoursStart:         req.QuietHoursStart,
		QuietHoursEnd:           req.QuietHoursEnd,
		Timezone:                req.Timezone,
		MaxNotificationsPerHour: req.MaxNotificationsPerHour,
		PriorityThreshold:       req.PriorityThreshold,
		Format:                  req.Format,
	}

	if err := h.prefService.Update(pref); err != nil {
		h.handleServiceError(w, err)
		return
	}

	// Возвращаем сохраненные настройки с маскированными credentials
	saved, err := h.prefService.Get(userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, saved)
}

// RotateToken выпускает новый API токен пользователя
// POST /api/v1/preferences/token
//
// Старый токен перестает действовать. Новый возвращается в открытом
// виде единственный раз, в хранилище попадает только хэш.
//
// Response:
// - 200 OK: новый токен
func (h *PreferenceHandler) RotateToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	token, err := h.prefService.RotateToken(userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// handleServiceError конвертирует ошибки сервиса в HTTP ответы
func (h *PreferenceHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownChannel):
		h.respondWithError(w, http.StatusBadRequest, "unknown_channel", "Unknown delivery channel", "")

	case errors.Is(err, service.ErrInvalidQuietHours):
		h.respondWithError(w, http.StatusBadRequest, "invalid_quiet_hours", "Quiet hours require both start and end as HH:MM", "")

	case errors.Is(err, service.ErrInvalidTimezone):
		h.respondWithError(w, http.StatusBadRequest, "invalid_timezone", "Timezone must be a valid IANA name", "")

	case errors.Is(err, service.ErrInvalidFormat):
		h.respondWithError(w, http.StatusBadRequest, "invalid_format", "Format must be plain or detailed", "")

	case errors.Is(err, service.ErrInvalidHourlyCap):
		h.respondWithError(w, http.StatusBadRequest, "invalid_hourly_cap", "Max notifications per hour must be non-negative", "")

	case errors.Is(err, service.ErrInvalidThreshold):
		h.respondWithError(w, http.StatusBadRequest, "invalid_threshold", "Priority threshold must be non-negative", "")

	default:
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}

// respondWithJSON отправляет JSON ответ
func (h *PreferenceHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *PreferenceHandler) respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
