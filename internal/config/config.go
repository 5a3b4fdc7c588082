package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Engine   EngineConfig
	Market   MarketConfig
	Channels ChannelsConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// EncryptionKey - 32 байта для AES-256, шифрование учётных данных каналов
	EncryptionKey string
}

// EngineConfig - настройки цикла оценки алертов
type EngineConfig struct {
	// TickInterval - период запуска цикла оценки
	TickInterval time.Duration

	// Workers - размер пула горутин для параллельной оценки алертов
	Workers int

	// EvalTimeout - таймаут оценки одного алерта (включая запрос рыночных данных)
	EvalTimeout time.Duration

	// DispatchTimeout - таймаут отправки одного уведомления
	DispatchTimeout time.Duration

	// Retry логика для доставки уведомлений
	MaxDispatchRetries int
	RetryBackoff       time.Duration

	// ResendInterval - период повторной отправки событий с notification_sent=false
	ResendInterval time.Duration

	// LogRetention - срок хранения записей журнала доставки (0 = хранить вечно)
	LogRetention time.Duration
}

// MarketConfig - настройки клиента сервиса котировок
type MarketConfig struct {
	// QuoteBaseURL - адрес сервиса котировок торговой платформы
	QuoteBaseURL string

	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// ChannelsConfig - настройки провайдеров каналов доставки
type ChannelsConfig struct {
	TelegramToken  string
	ResendAPIKey   string
	EmailFrom      string
	WebhookTimeout time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "alertd"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Engine: EngineConfig{
			TickInterval:    getEnvAsDuration("ENGINE_TICK_INTERVAL", 10*time.Second),
			Workers:         getEnvAsInt("ENGINE_WORKERS", 8),
			EvalTimeout:     getEnvAsDuration("EVAL_TIMEOUT", 5*time.Second),
			DispatchTimeout: getEnvAsDuration("DISPATCH_TIMEOUT", 10*time.Second),

			// Retry для доставки уведомлений
			MaxDispatchRetries: getEnvAsInt("MAX_DISPATCH_RETRIES", 3),
			RetryBackoff:       getEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond),

			ResendInterval: getEnvAsDuration("RESEND_INTERVAL", 1*time.Minute),
			LogRetention:   getEnvAsDuration("LOG_RETENTION", 0), // 0 = хранить вечно
		},
		Market: MarketConfig{
			QuoteBaseURL:   getEnv("QUOTE_BASE_URL", "http://localhost:9000"),
			ConnectTimeout: getEnvAsDuration("QUOTE_CONNECT_TIMEOUT", 5*time.Second),
			TotalTimeout:   getEnvAsDuration("QUOTE_TOTAL_TIMEOUT", 10*time.Second),
		},
		Channels: ChannelsConfig{
			TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			ResendAPIKey:   getEnv("RESEND_API_KEY", ""),
			EmailFrom:      getEnv("EMAIL_FROM", "alerts@localhost"),
			WebhookTimeout: getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования учётных данных каналов
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting channel credentials")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Валидация параметров цикла оценки
	if c.Engine.TickInterval < time.Second {
		return fmt.Errorf("ENGINE_TICK_INTERVAL must be at least 1s, got %v", c.Engine.TickInterval)
	}

	if c.Engine.Workers < 1 {
		return fmt.Errorf("ENGINE_WORKERS must be at least 1, got %d", c.Engine.Workers)
	}

	if c.Engine.Workers > 256 {
		return fmt.Errorf("ENGINE_WORKERS should not exceed 256, got %d", c.Engine.Workers)
	}

	// Валидация retry параметров
	if c.Engine.MaxDispatchRetries < 0 {
		return fmt.Errorf("MAX_DISPATCH_RETRIES cannot be negative, got %d", c.Engine.MaxDispatchRetries)
	}

	if c.Engine.MaxDispatchRetries > 10 {
		return fmt.Errorf("MAX_DISPATCH_RETRIES should not exceed 10, got %d", c.Engine.MaxDispatchRetries)
	}

	// Валидация таймаутов (должны быть положительными)
	if c.Engine.EvalTimeout <= 0 {
		return fmt.Errorf("EVAL_TIMEOUT must be positive, got %v", c.Engine.EvalTimeout)
	}

	if c.Engine.DispatchTimeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be positive, got %v", c.Engine.DispatchTimeout)
	}

	if c.Engine.LogRetention < 0 {
		return fmt.Errorf("LOG_RETENTION cannot be negative, got %v", c.Engine.LogRetention)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
