package handlers

import (
	"net/http"
	"time"
)

// Статусы доставки в callback'ах провайдеров
const (
	callbackStatusDelivered = "delivered"
	callbackStatusRead      = "read"
	callbackStatusClicked   = "clicked"
)

// CallbackHandler принимает callback'и провайдеров о статусе доставки
//
// Endpoints:
// - POST /api/v1/callbacks/delivery - обновление статуса доставки уведомления
//
// Endpoint не требует пользовательской аутентификации: provider_message_id
// известен только провайдеру, а неизвестные id молча отбрасываются.
type CallbackHandler struct {
	tracker DeliveryTracker
}

// NewCallbackHandler создает новый CallbackHandler с внедрением зависимостей
func NewCallbackHandler(tracker DeliveryTracker) *CallbackHandler {
	return &CallbackHandler{
		tracker: tracker,
	}
}

// DeliveryCallbackRequest структура callback'а провайдера
type DeliveryCallbackRequest struct {
	ProviderMessageID string     `json:"provider_message_id"`
	Status            string     `json:"status"`              // delivered, read, clicked
	Timestamp         *time.Time `json:"timestamp,omitempty"` // время события у провайдера
}

// HandleDeliveryCallback обновляет статус доставки по callback'у провайдера
// POST /api/v1/callbacks/delivery
//
// Request Body:
//
//	{
//	  "provider_message_id": "msg-abc123",
//	  "status": "delivered",
//	  "timestamp": "2026-08-31T10:15:00Z"
//	}
//
// Response:
// - 204 No Content: callback обработан (включая неизвестный id)
// - 400 Bad Request: невалидное тело или неизвестный статус
func (h *CallbackHandler) HandleDeliveryCallback(w http.ResponseWriter, r *http.Request) {
	var req DeliveryCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if req.ProviderMessageID == "" {
		h.respondWithError(w, http.StatusBadRequest, "missing_message_id", "provider_message_id is required", "")
		return
	}

	at := time.Now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	var err error
	switch req.Status {
	case callbackStatusDelivered:
		err = h.tracker.HandleDelivered(req.ProviderMessageID, at)
	case callbackStatusRead:
		err = h.tracker.HandleRead(req.ProviderMessageID, at)
	case callbackStatusClicked:
		err = h.tracker.HandleClicked(req.ProviderMessageID)
	default:
		h.respondWithError(w, http.StatusBadRequest, "unknown_status", "Status must be delivered, read or clicked", "")
		return
	}

	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to process callback", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondWithJSON отправляет JSON ответ
func (h *CallbackHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *CallbackHandler) respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
