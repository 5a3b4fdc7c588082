package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"alertd/internal/api/handlers"
	"alertd/internal/api/middleware"
	"alertd/internal/engine"
	"alertd/internal/service"
	"alertd/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	AlertService      *service.AlertService
	EventService      *service.EventService
	PreferenceService *service.PreferenceService
	Tracker           *engine.Tracker
	Hub               *websocket.Hub
	Logger            *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /alerts/
//	│   ├── GET / - список алертов пользователя
//	│   ├── POST / - создать алерт
//	│   ├── GET /{id} - получить алерт
//	│   ├── PUT /{id} - обновить алерт
//	│   ├── DELETE /{id} - удалить алерт
//	│   ├── POST /{id}/pause - приостановить вычисление
//	│   ├── POST /{id}/resume - возобновить вычисление
//	│   └── GET /{id}/events - события алерта
//	├── /events/
//	│   ├── GET / - лента событий пользователя
//	│   ├── GET /{id} - получить событие
//	│   ├── GET /{id}/deliveries - журнал доставки
//	│   ├── POST /{id}/acknowledge - подтвердить событие
//	│   ├── POST /{id}/snooze - отложить событие
//	│   └── POST /{id}/resolve - закрыть событие
//	├── /preferences/
//	│   ├── GET / - настройки уведомлений
//	│   ├── PUT / - обновить настройки
//	│   └── POST /token - выпустить новый API токен
//	└── /callbacks/
//	    └── POST /delivery - callback провайдера о статусе доставки
//
// /ws/stream - WebSocket для real-time событий дашборда
// /health    - проверка живости
// /metrics   - Prometheus метрики
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (для пользовательских маршрутов; callbacks и служебные
//    endpoints аутентификации не требуют)
func SetupRoutes(deps *Dependencies) *mux.Router {
	logger := zap.NewNop()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var alertHandler *handlers.AlertHandler
	if deps != nil && deps.AlertService != nil {
		alertHandler = handlers.NewAlertHandler(deps.AlertService)
	}

	var eventHandler *handlers.EventHandler
	if deps != nil && deps.EventService != nil {
		if deps.Hub != nil {
			eventHandler = handlers.NewEventHandler(deps.EventService, deps.Hub)
		} else {
			eventHandler = handlers.NewEventHandler(deps.EventService, nil)
		}
	}

	var preferenceHandler *handlers.PreferenceHandler
	if deps != nil && deps.PreferenceService != nil {
		preferenceHandler = handlers.NewPreferenceHandler(deps.PreferenceService)
	}

	var callbackHandler *handlers.CallbackHandler
	if deps != nil && deps.Tracker != nil {
		callbackHandler = handlers.NewCallbackHandler(deps.Tracker)
	}

	// Callback провайдеров регистрируется вне защищенного subrouter:
	// провайдеры не несут пользовательских токенов
	if callbackHandler != nil {
		router.HandleFunc("/api/v1/callbacks/delivery", callbackHandler.HandleDeliveryCallback).Methods("POST")
	}

	// API v1 routes, защищены Auth middleware
	api := router.PathPrefix("/api/v1").Subrouter()
	if deps != nil && deps.PreferenceService != nil {
		api.Use(middleware.Auth(deps.PreferenceService, logger))
	}

	// Alert routes
	if alertHandler != nil {
		api.HandleFunc("/alerts", alertHandler.GetAlerts).Methods("GET")
		api.HandleFunc("/alerts", alertHandler.CreateAlert).Methods("POST")
		api.HandleFunc("/alerts/{id}", alertHandler.GetAlert).Methods("GET")
		api.HandleFunc("/alerts/{id}", alertHandler.UpdateAlert).Methods("PUT")
		api.HandleFunc("/alerts/{id}", alertHandler.DeleteAlert).Methods("DELETE")
		api.HandleFunc("/alerts/{id}/pause", alertHandler.PauseAlert).Methods("POST")
		api.HandleFunc("/alerts/{id}/resume", alertHandler.ResumeAlert).Methods("POST")
	}

	// Event routes
	if eventHandler != nil {
		api.HandleFunc("/events", eventHandler.GetEvents).Methods("GET")
		api.HandleFunc("/events/{id}", eventHandler.GetEvent).Methods("GET")
		api.HandleFunc("/events/{id}/deliveries", eventHandler.GetEventDeliveries).Methods("GET")
		api.HandleFunc("/events/{id}/acknowledge", eventHandler.AcknowledgeEvent).Methods("POST")
		api.HandleFunc("/events/{id}/snooze", eventHandler.SnoozeEvent).Methods("POST")
		api.HandleFunc("/events/{id}/resolve", eventHandler.ResolveEvent).Methods("POST")
		api.HandleFunc("/alerts/{id}/events", eventHandler.GetAlertEvents).Methods("GET")
	}

	// Preference routes
	if preferenceHandler != nil {
		api.HandleFunc("/preferences", preferenceHandler.GetPreferences).Methods("GET")
		api.HandleFunc("/preferences", preferenceHandler.UpdatePreferences).Methods("PUT")
		api.HandleFunc("/preferences/token", preferenceHandler.RotateToken).Methods("POST")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
