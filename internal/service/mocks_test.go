package service

import (
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"
)

// Моки репозиториев для тестов сервисов

type mockAlertRepo struct {
	alerts map[int64]*models.Alert

	created      []*models.Alert
	updated      []*models.Alert
	statusChange map[int64]string
	deleted      []int64

	listErr error
}

func newMockAlertRepo(alerts ...*models.Alert) *mockAlertRepo {
	m := &mockAlertRepo{
		alerts:       map[int64]*models.Alert{},
		statusChange: map[int64]string{},
	}
	for _, a := range alerts {
		m.alerts[a.ID] = a
	}
	return m
}

func (m *mockAlertRepo) Create(alert *models.Alert) error {
	alert.ID = int64(len(m.created) + 1)
	m.created = append(m.created, alert)
	return nil
}

func (m *mockAlertRepo) GetByIDForUser(id, userID int64) (*models.Alert, error) {
	a, ok := m.alerts[id]
	if !ok || a.UserID != userID {
		return nil, repository.ErrAlertNotFound
	}
	return a, nil
}

func (m *mockAlertRepo) ListForUser(userID int64, status string) ([]*models.Alert, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Alert
	for _, a := range m.alerts {
		if a.UserID == userID && (status == "" || a.Status == status) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAlertRepo) Update(alert *models.Alert) error {
	m.updated = append(m.updated, alert)
	return nil
}

func (m *mockAlertRepo) UpdateStatus(id int64, status string) error {
	m.statusChange[id] = status
	return nil
}

func (m *mockAlertRepo) SoftDelete(id, userID int64) error {
	if _, ok := m.alerts[id]; !ok {
		return repository.ErrAlertNotFound
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type mockEventRepo struct {
	events map[int64]*models.AlertEvent

	acked    []int64
	snoozed  map[int64]time.Time
	resolved []int64
}

func newMockEventRepo(events ...*models.AlertEvent) *mockEventRepo {
	m := &mockEventRepo{
		events:  map[int64]*models.AlertEvent{},
		snoozed: map[int64]time.Time{},
	}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return m
}

func (m *mockEventRepo) GetByIDForUser(id, userID int64) (*models.AlertEvent, error) {
	e, ok := m.events[id]
	if !ok || e.UserID != userID {
		return nil, repository.ErrEventNotFound
	}
	return e, nil
}

func (m *mockEventRepo) ListForUser(userID int64, limit, offset int) ([]*models.AlertEvent, error) {
	var out []*models.AlertEvent
	for _, e := range m.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockEventRepo) ListForAlert(alertID int64, limit int) ([]*models.AlertEvent, error) {
	var out []*models.AlertEvent
	for _, e := range m.events {
		if e.AlertID == alertID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventRepo) Acknowledge(id, userID int64, at time.Time) error {
	if _, err := m.GetByIDForUser(id, userID); err != nil {
		return err
	}
	m.acked = append(m.acked, id)
	return nil
}

func (m *mockEventRepo) Snooze(id, userID int64, until time.Time) error {
	if _, err := m.GetByIDForUser(id, userID); err != nil {
		return err
	}
	m.snoozed[id] = until
	return nil
}

func (m *mockEventRepo) Resolve(id, userID int64, at time.Time) error {
	if _, err := m.GetByIDForUser(id, userID); err != nil {
		return err
	}
	m.resolved = append(m.resolved, id)
	return nil
}

type mockPrefRepo struct {
	prefs map[int64]*models.NotificationPreference

	upserted []*models.NotificationPreference
}

func newMockPrefRepo(prefs ...*models.NotificationPreference) *mockPrefRepo {
	m := &mockPrefRepo{prefs: map[int64]*models.NotificationPreference{}}
	for _, p := range prefs {
		m.prefs[p.UserID] = p
	}
	return m
}

func (m *mockPrefRepo) GetByUserID(userID int64) (*models.NotificationPreference, error) {
	if p, ok := m.prefs[userID]; ok {
		return p, nil
	}
	return models.DefaultPreference(userID), nil
}

func (m *mockPrefRepo) Upsert(pref *models.NotificationPreference) error {
	m.prefs[pref.UserID] = pref
	m.upserted = append(m.upserted, pref)
	return nil
}

func (m *mockPrefRepo) GetTokenHash(userID int64) (string, error) {
	p, ok := m.prefs[userID]
	if !ok || p.APITokenHash == "" {
		return "", repository.ErrPreferenceNotFound
	}
	return p.APITokenHash, nil
}

type mockLogRepo struct {
	byEvent map[int64][]*models.NotificationLogEntry
}

func (m *mockLogRepo) ListByEvent(eventID int64) ([]*models.NotificationLogEntry, error) {
	return m.byEvent[eventID], nil
}
