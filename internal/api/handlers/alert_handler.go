package handlers

import (
	stdjson "encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"alertd/internal/api/middleware"
	"alertd/internal/engine"
	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/internal/service"
)

// AlertHandler отвечает за управление алертами
//
// Endpoints:
// - POST /api/v1/alerts             - создание нового алерта
// - GET /api/v1/alerts              - список алертов пользователя
// - GET /api/v1/alerts/{id}         - получение конкретного алерта
// - PUT /api/v1/alerts/{id}         - обновление параметров алерта
// - DELETE /api/v1/alerts/{id}      - удаление алерта (soft delete)
// - POST /api/v1/alerts/{id}/pause  - приостановка вычисления
// - POST /api/v1/alerts/{id}/resume - возобновление вычисления
type AlertHandler struct {
	alertService AlertServiceInterface
}

// NewAlertHandler создает новый AlertHandler с внедрением зависимостей
func NewAlertHandler(alertService AlertServiceInterface) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
	}
}

// AlertRequest структура запроса на создание и обновление алерта
type AlertRequest struct {
	Name            string             `json:"name"`
	ConditionType   string             `json:"condition_type"`
	ConditionConfig stdjson.RawMessage `json:"condition_config"`

	Symbol   string   `json:"symbol,omitempty"`
	Symbols  []string `json:"symbols,omitempty"`
	Exchange string   `json:"exchange,omitempty"`

	AccountID  *int64 `json:"account_id,omitempty"`
	StrategyID *int64 `json:"strategy_id,omitempty"`

	Priority int      `json:"priority"`
	Channels []string `json:"channels"`

	EvaluationInterval int     `json:"evaluation_interval"`
	EvalWindowStart    *string `json:"eval_window_start,omitempty"`
	EvalWindowEnd      *string `json:"eval_window_end,omitempty"`
	MaxTriggersPerDay  int     `json:"max_triggers_per_day"`
	CooldownSeconds    int     `json:"cooldown_seconds"`
	OneShot            bool    `json:"one_shot"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateAlert создает новый алерт
// POST /api/v1/alerts
//
// Request Body:
//
//	{
//	  "name": "NIFTY above 19500",
//	  "condition_type": "price",
//	  "condition_config": {"operator": "gte", "threshold": 19500},
//	  "symbol": "NIFTY",
//	  "exchange": "NSE",
//	  "priority": 3,
//	  "channels": ["telegram", "email"],
//	  "evaluation_interval": 30
//	}
//
// Response:
// - 201 Created: алерт создан
// - 400 Bad Request: невалидные параметры или конфигурация условия
// - 409 Conflict: достигнут лимит алертов
func (h *AlertHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	var req AlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	alert := req.toModel(0, userID)
	if err := h.alertService.Create(alert); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, alert)
}

// GetAlerts возвращает список алертов пользователя
// GET /api/v1/alerts
//
// Query Parameters:
// - status: фильтр по статусу (active, paused, triggered, expired)
//
// Response:
// - 200 OK: массив алертов
func (h *AlertHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	alerts, err := h.alertService.List(userID, r.URL.Query().Get("status"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if alerts == nil {
		alerts = []*models.Alert{}
	}
	h.respondWithJSON(w, http.StatusOK, alerts)
}

// GetAlert возвращает конкретный алерт по ID
// GET /api/v1/alerts/{id}
//
// Response:
// - 200 OK: данные алерта
// - 404 Not Found: алерт не найден или принадлежит другому пользователю
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	id, err := h.parseID(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid alert ID", "ID must be a number")
		return
	}

	alert, err := h.alertService.Get(id, userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, alert)
}

// UpdateAlert обновляет параметры алерта
// PUT /api/v1/alerts/{id}
//
// Статус, счётчики и курсоры вычисления обновлению не подлежат:
// они принадлежат движку и сохраняются из текущей версии алерта.
//
// Response:
// - 200 OK: обновленный алерт
// - 400 Bad Request: невалидные параметры
// - 404 Not Found: алерт не найден
func (h *AlertHandler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	id, err := h.parseID(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid alert ID", "ID must be a number")
		return
	}

	var req AlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	alert := req.toModel(id, userID)
	if err := h.alertService.Update(alert); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, alert)
}

// DeleteAlert удаляет алерт (soft delete)
// DELETE /api/v1/alerts/{id}
//
// Response:
// - 204 No Content: алерт удален
// - 404 Not Found: алерт не найден
func (h *AlertHandler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	id, err := h.parseID(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid alert ID", "ID must be a number")
		return
	}

	if err := h.alertService.Delete(id, userID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PauseAlert приостанавливает вычисление алерта
// POST /api/v1/alerts/{id}/pause
//
// Response:
// - 200 OK: алерт приостановлен
// - 404 Not Found: алерт не найден
// - 409 Conflict: недопустимый переход статуса
func (h *AlertHandler) PauseAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.alertService.Pause, "alert paused")
}

// ResumeAlert возобновляет вычисление алерта
// POST /api/v1/alerts/{id}/resume
//
// Response:
// - 200 OK: алерт снова активен
// - 404 Not Found: алерт не найден
// - 409 Conflict: недопустимый переход статуса (one-shot после срабатывания)
func (h *AlertHandler) ResumeAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.alertService.Resume, "alert resumed")
}

func (h *AlertHandler) transition(w http.ResponseWriter, r *http.Request, op func(id, userID int64) error, message string) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	id, err := h.parseID(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid alert ID", "ID must be a number")
		return
	}

	if err := op(id, userID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: message})
}

// toModel собирает модель алерта из запроса
func (req *AlertRequest) toModel(id, userID int64) *models.Alert {
	return &models.Alert{
		ID:                 id,
		UserID:             userID,
		AccountID:          req.AccountID,
		StrategyID:         req.StrategyID,
		Name:               req.Name,
		ConditionType:      req.ConditionType,
		ConditionConfig:    req.ConditionConfig,
		Symbol:             req.Symbol,
		Symbols:            req.Symbols,
		Exchange:           req.Exchange,
		Priority:           req.Priority,
		Channels:           req.Channels,
		EvaluationInterval: req.EvaluationInterval,
		EvalWindowStart:    req.EvalWindowStart,
		EvalWindowEnd:      req.EvalWindowEnd,
		MaxTriggersPerDay:  req.MaxTriggersPerDay,
		CooldownSeconds:    req.CooldownSeconds,
		OneShot:            req.OneShot,
		ExpiresAt:          req.ExpiresAt,
	}
}

func (h *AlertHandler) parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// handleServiceError конвертирует ошибки сервиса в HTTP ответы
func (h *AlertHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrAlertNotFound):
		h.respondWithError(w, http.StatusNotFound, "alert_not_found", "Alert not found", "")

	case errors.Is(err, service.ErrMaxAlertsReached):
		h.respondWithError(w, http.StatusConflict, "max_alerts_reached", "Maximum number of alerts reached", "")

	case errors.Is(err, service.ErrInvalidStatusChange):
		h.respondWithError(w, http.StatusConflict, "invalid_status_change", "Status transition is not allowed", "")

	case errors.Is(err, service.ErrAlertNameRequired):
		h.respondWithError(w, http.StatusBadRequest, "name_required", "Alert name is required", "")

	case errors.Is(err, service.ErrAlertNameTooLong):
		h.respondWithError(w, http.StatusBadRequest, "name_too_long", "Alert name must be at most 200 characters", "")

	case errors.Is(err, service.ErrNoChannels):
		h.respondWithError(w, http.StatusBadRequest, "no_channels", "At least one delivery channel is required", "")

	case errors.Is(err, service.ErrUnknownChannel):
		h.respondWithError(w, http.StatusBadRequest, "unknown_channel", "Unknown delivery channel", "")

	case errors.Is(err, service.ErrInvalidPriority):
		h.respondWithError(w, http.StatusBadRequest, "invalid_priority", "Priority must be non-negative", "")

	case errors.Is(err, service.ErrIntervalTooShort):
		h.respondWithError(w, http.StatusBadRequest, "interval_too_short", "Evaluation interval is below the minimum of 10 seconds", "")

	case errors.Is(err, service.ErrInvalidEvalWindow):
		h.respondWithError(w, http.StatusBadRequest, "invalid_eval_window", "Evaluation window requires both start and end as HH:MM", "")

	case errors.Is(err, service.ErrInvalidCooldown):
		h.respondWithError(w, http.StatusBadRequest, "invalid_cooldown", "Cooldown must be non-negative", "")

	case errors.Is(err, service.ErrInvalidDailyCap):
		h.respondWithError(w, http.StatusBadRequest, "invalid_daily_cap", "Max triggers per day must be non-negative", "")

	case errors.Is(err, service.ErrExpiryInPast):
		h.respondWithError(w, http.StatusBadRequest, "expiry_in_past", "Expiration time must be in the future", "")

	case errors.Is(err, service.ErrInvalidStatusFilter):
		h.respondWithError(w, http.StatusBadRequest, "invalid_status_filter", "Unknown status filter", "")

	default:
		// Ошибки конфигурации условия из валидатора движка
		var vErr *engine.ValidationError
		if errors.As(err, &vErr) {
			h.respondWithError(w, http.StatusBadRequest, "invalid_condition_config", "Invalid condition configuration", err.Error())
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}

// respondWithJSON отправляет JSON ответ
func (h *AlertHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *AlertHandler) respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
