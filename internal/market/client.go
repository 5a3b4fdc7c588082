package market

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// QuoteClientConfig содержит настройки HTTP клиента сервиса котировок
type QuoteClientConfig struct {
	BaseURL string

	// Таймауты
	ConnectTimeout time.Duration // таймаут установки TCP соединения (default: 5s)
	TotalTimeout   time.Duration // общий таймаут запроса (default: 10s)

	// Connection pooling
	MaxIdleConns        int           // максимум idle соединений (default: 100)
	MaxIdleConnsPerHost int           // максимум idle соединений на хост (default: 10)
	IdleConnTimeout     time.Duration // таймаут простоя соединения (default: 90s)
}

// DefaultQuoteClientConfig возвращает конфигурацию по умолчанию
func DefaultQuoteClientConfig(baseURL string) QuoteClientConfig {
	return QuoteClientConfig{
		BaseURL:             baseURL,
		ConnectTimeout:      5 * time.Second,
		TotalTimeout:        10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// QuoteClient - HTTP клиент сервиса котировок торговой платформы
//
// Один запрос GET /api/v1/state возвращает снимок состояния для области:
// цену, индикаторы, позицию, греки, ордера и метрики стратегии.
// Клиент переиспользует соединения через connection pool
type QuoteClient struct {
	baseURL string
	client  *http.Client
}

// NewQuoteClient создаёт клиент сервиса котировок
func NewQuoteClient(cfg QuoteClientConfig) *QuoteClient {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &QuoteClient{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.TotalTimeout,
		},
	}
}

// GetState запрашивает снимок состояния у сервиса котировок
func (c *QuoteClient) GetState(ctx context.Context, q Query) (*Snapshot, error) {
	params := url.Values{}
	params.Set("symbol", q.Symbol)
	if q.Exchange != "" {
		params.Set("exchange", q.Exchange)
	}
	if q.AccountID != "" {
		params.Set("account_id", q.AccountID)
	}
	if q.StrategyID != "" {
		params.Set("strategy_id", q.StrategyID)
	}

	reqURL := fmt.Sprintf("%s/api/v1/state?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build state request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("state request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read state response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote service returned status %d: %s", resp.StatusCode, string(body))
	}

	var snapshot Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode state response: %w", err)
	}

	return &snapshot, nil
}

// Проверка реализации интерфейса на этапе компиляции
var _ StateProvider = (*QuoteClient)(nil)
