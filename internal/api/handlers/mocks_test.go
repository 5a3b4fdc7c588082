package handlers

import (
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"
)

// mockAlertService - мок сервиса алертов, хранит алерты в памяти
type mockAlertService struct {
	alerts map[int64]*models.Alert
	nextID int64
	err    error // если задана, возвращается из всех операций

	paused  []int64
	resumed []int64
	deleted []int64
}

func newMockAlertService(alerts ...*models.Alert) *mockAlertService {
	m := &mockAlertService{
		alerts: make(map[int64]*models.Alert),
		nextID: 1,
	}
	for _, a := range alerts {
		m.alerts[a.ID] = a
		if a.ID >= m.nextID {
			m.nextID = a.ID + 1
		}
	}
	return m
}

func (m *mockAlertService) Create(alert *models.Alert) error {
	if m.err != nil {
		return m.err
	}
	alert.ID = m.nextID
	m.nextID++
	alert.Status = models.AlertStatusActive
	m.alerts[alert.ID] = alert
	return nil
}

func (m *mockAlertService) Get(id, userID int64) (*models.Alert, error) {
	if m.err != nil {
		return nil, m.err
	}
	alert, ok := m.alerts[id]
	if !ok || alert.UserID != userID {
		return nil, repository.ErrAlertNotFound
	}
	return alert, nil
}

func (m *mockAlertService) List(userID int64, status string) ([]*models.Alert, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Alert
	for _, a := range m.alerts {
		if a.UserID != userID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *mockAlertService) Update(alert *models.Alert) error {
	if m.err != nil {
		return m.err
	}
	existing, ok := m.alerts[alert.ID]
	if !ok || existing.UserID != alert.UserID {
		return repository.ErrAlertNotFound
	}
	m.alerts[alert.ID] = alert
	return nil
}

func (m *mockAlertService) Pause(id, userID int64) error {
	if err := m.checkOwned(id, userID); err != nil {
		return err
	}
	m.paused = append(m.paused, id)
	return nil
}

func (m *mockAlertService) Resume(id, userID int64) error {
	if err := m.checkOwned(id, userID); err != nil {
		return err
	}
	m.resumed = append(m.resumed, id)
	return nil
}

func (m *mockAlertService) Delete(id, userID int64) error {
	if err := m.checkOwned(id, userID); err != nil {
		return err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockAlertService) checkOwned(id, userID int64) error {
	if m.err != nil {
		return m.err
	}
	alert, ok := m.alerts[id]
	if !ok || alert.UserID != userID {
		return repository.ErrAlertNotFound
	}
	return nil
}

// mockEventService - мок сервиса событий
type mockEventService struct {
	events     map[int64]*models.AlertEvent
	deliveries map[int64][]*models.NotificationLogEntry
	err        error

	acked    []int64
	snoozed  []int64
	resolved []int64
}

func newMockEventService(events ...*models.AlertEvent) *mockEventService {
	m := &mockEventService{
		events:     make(map[int64]*models.AlertEvent),
		deliveries: make(map[int64][]*models.NotificationLogEntry),
	}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return m
}

func (m *mockEventService) Get(id, userID int64) (*models.AlertEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	event, ok := m.events[id]
	if !ok || event.UserID != userID {
		return nil, repository.ErrEventNotFound
	}
	return event, nil
}

func (m *mockEventService) List(userID int64, limit, offset int) ([]*models.AlertEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.AlertEvent
	for _, e := range m.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventService) ListForAlert(alertID, userID int64, limit int) ([]*models.AlertEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.AlertEvent
	for _, e := range m.events {
		if e.AlertID == alertID && e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventService) Acknowledge(id, userID int64) error {
	if err := m.mutate(id, userID, models.EventStatusAcknowledged); err != nil {
		return err
	}
	m.acked = append(m.acked, id)
	return nil
}

func (m *mockEventService) Snooze(id, userID int64, until time.Time) error {
	if m.err != nil {
		return m.err
	}
	if err := m.mutate(id, userID, models.EventStatusSnoozed); err != nil {
		return err
	}
	m.snoozed = append(m.snoozed, id)
	return nil
}

func (m *mockEventService) Resolve(id, userID int64) error {
	if err := m.mutate(id, userID, models.EventStatusResolved); err != nil {
		return err
	}
	m.resolved = append(m.resolved, id)
	return nil
}

func (m *mockEventService) mutate(id, userID int64, status string) error {
	if m.err != nil {
		return m.err
	}
	event, ok := m.events[id]
	if !ok || event.UserID != userID {
		return repository.ErrEventNotFound
	}
	event.Status = status
	return nil
}

func (m *mockEventService) Deliveries(eventID, userID int64) ([]*models.NotificationLogEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	event, ok := m.events[eventID]
	if !ok || event.UserID != userID {
		return nil, repository.ErrEventNotFound
	}
	return m.deliveries[eventID], nil
}

// mockPreferenceService - мок сервиса настроек
type mockPreferenceService struct {
	pref      *models.NotificationPreference
	token     string
	err       error
	updated   *models.NotificationPreference
	rotations int
}

func (m *mockPreferenceService) Get(userID int64) (*models.NotificationPreference, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.pref != nil {
		return m.pref, nil
	}
	return models.DefaultPreference(userID), nil
}

func (m *mockPreferenceService) Update(pref *models.NotificationPreference) error {
	if m.err != nil {
		return m.err
	}
	m.updated = pref
	m.pref = pref
	return nil
}

func (m *mockPreferenceService) RotateToken(userID int64) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.rotations++
	return m.token, nil
}

// mockTracker - мок обработчика callback'ов провайдеров
type mockTracker struct {
	err       error
	delivered []string
	read      []string
	clicked   []string
}

func (m *mockTracker) HandleDelivered(providerMessageID string, at time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.delivered = append(m.delivered, providerMessageID)
	return nil
}

func (m *mockTracker) HandleRead(providerMessageID string, at time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.read = append(m.read, providerMessageID)
	return nil
}

func (m *mockTracker) HandleClicked(providerMessageID string) error {
	if m.err != nil {
		return m.err
	}
	m.clicked = append(m.clicked, providerMessageID)
	return nil
}

// mockEventBroadcaster фиксирует разосланные обновления событий
type mockEventBroadcaster struct {
	updates []*models.AlertEvent
}

func (m *mockEventBroadcaster) BroadcastEventUpdate(event *models.AlertEvent) {
	m.updates = append(m.updates, event)
}
