package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"alertd/internal/api"
	"alertd/internal/channel"
	"alertd/internal/config"
	"alertd/internal/engine"
	"alertd/internal/market"
	"alertd/internal/repository"
	"alertd/internal/service"
	"alertd/internal/websocket"
	"alertd/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация репозиториев
	alertRepo := repository.NewAlertRepository(db)
	eventRepo := repository.NewEventRepository(db)
	prefRepo := repository.NewPreferenceRepository(db)
	logRepo := repository.NewNotificationLogRepository(db)

	// Инициализация сервисов
	alertService := service.NewAlertService(alertRepo)
	eventService := service.NewEventService(eventRepo, alertRepo, logRepo)
	preferenceService := service.NewPreferenceService(prefRepo, []byte(cfg.Security.EncryptionKey))

	// WebSocket hub для real-time обновлений дашборда
	hub := websocket.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	// Клиент сервиса котировок
	quoteCfg := market.DefaultQuoteClientConfig(cfg.Market.QuoteBaseURL)
	quoteCfg.ConnectTimeout = cfg.Market.ConnectTimeout
	quoteCfg.TotalTimeout = cfg.Market.TotalTimeout
	quoteClient := market.NewQuoteClient(quoteCfg)

	// Адаптеры каналов доставки и диспетчер уведомлений
	registry := channel.NewRegistry(cfg.Channels, logger)
	dispatcher := engine.NewDispatcher(
		prefRepo,
		eventRepo,
		logRepo,
		registry,
		logger,
		cfg.Engine.MaxDispatchRetries,
		cfg.Engine.RetryBackoff,
		cfg.Engine.DispatchTimeout,
	)

	// Движок оценки алертов
	alertEngine := engine.NewEngine(
		alertRepo,
		eventRepo,
		prefRepo,
		logRepo,
		quoteClient,
		dispatcher,
		hub,
		cfg.Engine,
		logger,
	)

	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	go alertEngine.Run(engineCtx)

	// Tracker callback'ов провайдеров о статусе доставки
	tracker := engine.NewTracker(logRepo, logger)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		AlertService:      alertService,
		EventService:      eventService,
		PreferenceService: preferenceService,
		Tracker:           tracker,
		Hub:               hub,
		Logger:            logger,
	}

	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Останавливаем цикл оценки, чтобы не начинать новых отправок
	stopEngine()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
