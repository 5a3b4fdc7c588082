package engine

import (
	"context"
	"sync"
	"time"

	"alertd/internal/channel"
	"alertd/internal/market"
	"alertd/internal/models"
	"alertd/internal/repository"
)

// Моки хранилищ для тестов движка. Поведение задается функциями,
// незаданная функция возвращает нулевой результат

type mockAlertStore struct {
	mu        sync.Mutex
	active    []*models.Alert
	byID      map[int64]*models.Alert
	evaluated []int64

	triggerFn    func(alert *models.Alert) (*models.AlertEvent, bool, error)
	triggerCalls int
	expired      int64
}

func (m *mockAlertStore) GetActive() ([]*models.Alert, error) {
	return m.active, nil
}

func (m *mockAlertStore) GetByID(id int64) (*models.Alert, error) {
	if a, ok := m.byID[id]; ok {
		return a, nil
	}
	return nil, repository.ErrAlertNotFound
}

func (m *mockAlertStore) MarkEvaluated(id int64, evaluatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluated = append(m.evaluated, id)
	return nil
}

func (m *mockAlertStore) TriggerAtomic(alert *models.Alert, now, dayStart time.Time, triggerValue, evalResult map[string]interface{}) (*models.AlertEvent, bool, error) {
	m.mu.Lock()
	m.triggerCalls++
	m.mu.Unlock()
	if m.triggerFn != nil {
		return m.triggerFn(alert)
	}
	return &models.AlertEvent{
		ID:           1000 + alert.ID,
		AlertID:      alert.ID,
		UserID:       alert.UserID,
		TriggeredAt:  now,
		Status:       models.EventStatusTriggered,
		TriggerValue: triggerValue,
	}, true, nil
}

func (m *mockAlertStore) ExpireDue(now time.Time) (int64, error) {
	return m.expired, nil
}

func (m *mockAlertStore) evaluatedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.evaluated...)
}

type mockEventStore struct {
	mu            sync.Mutex
	snoozeElapsed []*models.AlertEvent
	unnotified    []*models.AlertEvent
	snoozeCleared bool
	results       []notificationResult
}

type notificationResult struct {
	eventID  int64
	sent     bool
	channels []string
	ids      map[string]string
}

func (m *mockEventStore) ListSnoozeElapsed(now time.Time, limit int) ([]*models.AlertEvent, error) {
	return m.snoozeElapsed, nil
}

func (m *mockEventStore) ClearElapsedSnoozes(now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snoozeCleared = true
	return int64(len(m.snoozeElapsed)), nil
}

func (m *mockEventStore) ListUnnotified(olderThan time.Time, limit int) ([]*models.AlertEvent, error) {
	return m.unnotified, nil
}

func (m *mockEventStore) SetNotificationResult(id int64, sent bool, channels []string, ids map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, notificationResult{eventID: id, sent: sent, channels: channels, ids: ids})
	return nil
}

func (m *mockEventStore) lastResult() (notificationResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 {
		return notificationResult{}, false
	}
	return m.results[len(m.results)-1], true
}

type mockPreferenceStore struct {
	pref *models.NotificationPreference
	err  error
}

func (m *mockPreferenceStore) GetByUserID(userID int64) (*models.NotificationPreference, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.pref != nil {
		return m.pref, nil
	}
	return models.DefaultPreference(userID), nil
}

type mockLogStore struct {
	mu sync.Mutex

	// canal -> ошибка CreatePending (ErrDuplicateDelivery, ErrRateLimited)
	pendingErr map[string]error
	nextID     int64

	pending []string // каналы, для которых создана pending запись
	sent    []int64
	failed  []int64

	entries map[string]*models.NotificationLogEntry // provider message id -> запись
	updates []string                                // "delivered:<id>", "read:<id>", "clicked:<id>"

	markErr error // ошибка переходов delivered/read/clicked

	deleted int64
}

func (m *mockLogStore) CreatePending(entry *models.NotificationLogEntry, maxPerHour int, windowStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.pendingErr[entry.Channel]; ok {
		return err
	}
	m.nextID++
	entry.ID = m.nextID
	entry.Status = models.DeliveryStatusPending
	m.pending = append(m.pending, entry.Channel)
	return nil
}

func (m *mockLogStore) MarkSent(id int64, providerMessageID string, statusCode, attempts int, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, id)
	return nil
}

func (m *mockLogStore) MarkFailed(id int64, statusCode int, errorMessage string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, id)
	return nil
}

func (m *mockLogStore) GetByProviderMessageID(providerMessageID string) (*models.NotificationLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[providerMessageID]; ok {
		return e, nil
	}
	return nil, repository.ErrLogEntryNotFound
}

func (m *mockLogStore) MarkDelivered(providerMessageID string, at time.Time) error {
	return m.transition("delivered", providerMessageID)
}

func (m *mockLogStore) MarkRead(providerMessageID string, at time.Time) error {
	return m.transition("read", providerMessageID)
}

func (m *mockLogStore) SetClicked(providerMessageID string) error {
	return m.transition("clicked", providerMessageID)
}

func (m *mockLogStore) transition(kind, providerMessageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.updates = append(m.updates, kind+":"+providerMessageID)
	return nil
}

func (m *mockLogStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	return m.deleted, nil
}

func permanentProviderErr(ch string, code int) error {
	return &channel.ProviderError{Channel: ch, StatusCode: code, Message: "provider error"}
}

type sentNotification struct {
	channel   string
	recipient string
	eventID   int64
}

type mockSender struct {
	mu sync.Mutex

	// канал -> последовательность ошибок, по одной на попытку.
	// Исчерпание последовательности означает успех
	errs map[string][]error

	sent []sentNotification
}

func (m *mockSender) Send(ctx context.Context, channelName, recipient string, n *channel.Notification) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if queue := m.errs[channelName]; len(queue) > 0 {
		err := queue[0]
		m.errs[channelName] = queue[1:]
		if err != nil {
			return "", err
		}
	}

	m.sent = append(m.sent, sentNotification{channel: channelName, recipient: recipient, eventID: n.EventID})
	return "msg-" + channelName, nil
}

func (m *mockSender) sentChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.channel)
	}
	return out
}

type mockBroadcaster struct {
	mu       sync.Mutex
	messages [][]byte
}

func (m *mockBroadcaster) Broadcast(message []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
}

type stubProvider struct {
	mu       sync.Mutex
	snapshot *market.Snapshot
	err      error
	calls    int
}

func (p *stubProvider) GetState(ctx context.Context, q market.Query) (*market.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.snapshot, nil
}
