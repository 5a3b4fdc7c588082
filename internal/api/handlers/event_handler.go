package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"alertd/internal/api/middleware"
	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/internal/service"
)

// EventHandler отвечает за события срабатываний алертов
//
// Endpoints:
// - GET /api/v1/events                    - список событий пользователя
// - GET /api/v1/events/{id}               - получение конкретного события
// - GET /api/v1/events/{id}/deliveries    - журнал доставки уведомлений события
// - POST /api/v1/events/{id}/acknowledge  - подтверждение события
// - POST /api/v1/events/{id}/snooze       - откладывание события
// - POST /api/v1/events/{id}/resolve      - закрытие события
// - GET /api/v1/alerts/{id}/events        - события конкретного алерта
type EventHandler struct {
	eventService EventServiceInterface
	broadcaster  EventBroadcaster
}

// NewEventHandler создает новый EventHandler с внедрением зависимостей
func NewEventHandler(eventService EventServiceInterface, broadcaster EventBroadcaster) *EventHandler {
	return &EventHandler{
		eventService: eventService,
		broadcaster:  broadcaster,
	}
}

// SnoozeRequest структура запроса на откладывание события
type SnoozeRequest struct {
	Until time.Time `json:"until"` // RFC3339, максимум 7 суток вперед
}

// GetEvents возвращает события пользователя, новые первыми
// GET /api/v1/events
//
// Query Parameters:
// - limit: размер страницы (default: 50, max: 200)
// - offset: смещение от начала
//
// Response:
// - 200 OK: массив событий
// - 400 Bad Request: отрицательные limit или offset
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	limit, err := h.queryInt(r, "limit")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_limit", "Invalid limit parameter", err.Error())
		return
	}
	offset, err := h.queryInt(r, "offset")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_offset", "Invalid offset parameter", err.Error())
		return
	}

	events, err := h.eventService.List(userID, limit, offset)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if events == nil {
		events = []*models.AlertEvent{}
	}
	h.respondWithJSON(w, http.StatusOK, events)
}

// GetEvent возвращает конкретное событие по ID
// GET /api/v1/events/{id}
//
// Response:
// - 200 OK: данные события
// - 404 Not Found: событие не найдено или принадлежит другому пользователю
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	id, err := h.parseID(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid event ID", "ID must be a number")
		return
	}

	event, err := h.eventService.Get(id, userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, event)
}

// GetAlertEvents возвращает события конкретного алерта
// GET /api/v1/alerts/{id}/events
//
// Query Parameters:
// - limit: максимум событий (default: 50, max: 200)
//
// Response:
// - 200 OK: массив событий
// - 404 Not Found: алерт не найден
func (h *EventHandler) GetAlertEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	alertID, err := h.parseID(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid alert ID", "ID must be a number")
		return
	}

	limit, err := h.queryInt(r, "limit")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_limit", "Invalid limit parameter", err.Error())
		return
	}

	events, err := h.eventService.ListForAlert(alertID, userID, limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if events == nil {
		events = []*models.AlertEvent{}
	}
	h.respondWithJSON(w, http.StatusOK, events)
}

// GetEventDeliveries возвращает журнал доставки уведомлений события
// GET /api/v1/events/{id}/deliveries
//
// Response:
// - 200 OK: массив записей журнала (канал, получатель, статус, попытки)
// - 404 Not Found: событие не найдено
func (h *EventHandler) GetEventDeliveries(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	id, err := h.parseID(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid event ID", "ID must be a number")
		return
	}

	entries, err := h.eventService.Deliveries(id, userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if entries == nil {
		entries = []*models.NotificationLogEntry{}
	}
	h.respondWithJSON(w, http.StatusOK, entries)
}

// AcknowledgeEvent подтверждает событие
// POST /api/v1/events/{id}/acknowledge
//
// Response:
// - 200 OK: событие в статусе acknowledged
// - 404 Not Found: событие не найдено или переход из текущего статуса невозможен
func (h *EventHandler) AcknowledgeEvent(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, userID int64) error {
		return h.eventService.Acknowledge(id, userID)
	})
}

// SnoozeEvent откладывает событие до указанного момента
// POST /api/v1/events/{id}/snooze
//
// Пока событие отложено, алерт не создает новых срабатываний.
// По истечении срока движок повторно проверит условие.
//
// Request Body:
//
//	{"until": "2026-09-01T09:15:00Z"}
//
// Response:
// - 200 OK: событие в статусе snoozed
// - 400 Bad Request: until в прошлом или дальше 7 суток
// - 404 Not Found: событие не найдено
func (h *EventHandler) SnoozeEvent(w http.ResponseWriter, r *http.Request) {
	var req SnoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	h.transition(w, r, func(id, userID int64) error {
		return h.eventService.Snooze(id, userID, req.Until)
	})
}

// ResolveEvent закрывает событие
// POST /api/v1/events/{id}/resolve
//
// Response:
// - 200 OK: событие в статусе resolved
// - 404 Not Found: событие не найдено
func (h *EventHandler) ResolveEvent(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, userID int64) error {
		return h.eventService.Resolve(id, userID)
	})
}

// transition выполняет смену статуса события и рассылает обновление дашборду
func (h *EventHandler) transition(w http.ResponseWriter, r *http.Request, op func(id, userID int64) error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "")
		return
	}

	id, err := h.parseID(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid event ID", "ID must be a number")
		return
	}

	if err := op(id, userID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	event, err := h.eventService.Get(id, userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.BroadcastEventUpdate(event)
	}

	h.respondWithJSON(w, http.StatusOK, event)
}

func (h *EventHandler) parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// queryInt читает неотрицательный целочисленный query параметр (0 если не задан)
func (h *EventHandler) queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// handleServiceError конвертирует ошибки сервиса в HTTP ответы
func (h *EventHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		h.respondWithError(w, http.StatusNotFound, "event_not_found", "Event not found", "")

	case errors.Is(err, repository.ErrAlertNotFound):
		h.respondWithError(w, http.StatusNotFound, "alert_not_found", "Alert not found", "")

	case errors.Is(err, service.ErrSnoozeInPast):
		h.respondWithError(w, http.StatusBadRequest, "snooze_in_past", "Snooze until must be in the future", "")

	case errors.Is(err, service.ErrSnoozeTooLong):
		h.respondWithError(w, http.StatusBadRequest, "snooze_too_long", "Snooze duration exceeds the maximum of 7 days", "")

	case errors.Is(err, service.ErrInvalidPaging):
		h.respondWithError(w, http.StatusBadRequest, "invalid_paging", "Limit and offset must be non-negative", "")

	default:
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}

// respondWithJSON отправляет JSON ответ
func (h *EventHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *EventHandler) respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
