package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"alertd/internal/models"
)

// ============================================================
// EventRepository Tests
// ============================================================

func eventRows(event *models.AlertEvent) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "alert_id", "user_id", "triggered_at", "status", "trigger_value", "evaluation_result",
		"notification_sent", "notification_channels", "notification_ids",
		"acknowledged_at", "acknowledged_by", "snoozed_until", "resolved_at", "resolved_by",
	}).AddRow(
		event.ID, event.AlertID, event.UserID, event.TriggeredAt, event.Status,
		[]byte(`{"price": 19520.5}`), []byte(`{"operator": ">="}`),
		event.NotificationSent, "{telegram}", []byte(`{"telegram": "777"}`),
		event.AcknowledgedAt, event.AcknowledgedBy, event.SnoozedUntil, event.ResolvedAt, event.ResolvedBy,
	)
}

func sampleEvent() *models.AlertEvent {
	return &models.AlertEvent{
		ID:          100,
		AlertID:     1,
		UserID:      10,
		TriggeredAt: time.Now(),
		Status:      models.EventStatusTriggered,
	}
}

func TestEventRepositoryGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM alert_events WHERE id = \$1`).
		WithArgs(int64(100)).
		WillReturnRows(eventRows(sampleEvent()))

	repo := NewEventRepository(db)
	event, err := repo.GetByID(100)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if event.TriggerValue["price"] != 19520.5 {
		t.Errorf("expected trigger value price=19520.5, got %v", event.TriggerValue["price"])
	}
	if event.NotificationIDs["telegram"] != "777" {
		t.Errorf("expected notification id 777, got %v", event.NotificationIDs)
	}
}

func TestEventRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM alert_events WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewEventRepository(db)
	if _, err := repo.GetByID(404); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEventRepositoryAcknowledge(t *testing.T) {
	t.Run("first acknowledge", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create mock: %v", err)
		}
		defer db.Close()

		at := time.Now()
		mock.ExpectExec(`UPDATE alert_events`).
			WithArgs(int64(100), int64(10), at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewEventRepository(db)
		if err := repo.Acknowledge(100, 10, at); err != nil {
			t.Errorf("Acknowledge failed: %v", err)
		}
	})

	t.Run("repeat acknowledge is idempotent", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create mock: %v", err)
		}
		defer db.Close()

		at := time.Now()
		mock.ExpectExec(`UPDATE alert_events`).
			WithArgs(int64(100), int64(10), at).
			WillReturnResult(sqlmock.NewResult(0, 0))

		acked := sampleEvent()
		acked.Status = models.EventStatusAcknowledged
		mock.ExpectQuery(`SELECT (.+) FROM alert_events WHERE id = \$1 AND user_id = \$2`).
			WithArgs(int64(100), int64(10)).
			WillReturnRows(eventRows(acked))

		repo := NewEventRepository(db)
		if err := repo.Acknowledge(100, 10, at); err != nil {
			t.Errorf("repeat Acknowledge should be no-op, got %v", err)
		}
	})

	t.Run("acknowledge resolved event fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create mock: %v", err)
		}
		defer db.Close()

		at := time.Now()
		mock.ExpectExec(`UPDATE alert_events`).
			WithArgs(int64(100), int64(10), at).
			WillReturnResult(sqlmock.NewResult(0, 0))

		resolved := sampleEvent()
		resolved.Status = models.EventStatusResolved
		mock.ExpectQuery(`SELECT (.+) FROM alert_events WHERE id = \$1 AND user_id = \$2`).
			WithArgs(int64(100), int64(10)).
			WillReturnRows(eventRows(resolved))

		repo := NewEventRepository(db)
		if err := repo.Acknowledge(100, 10, at); !errors.Is(err, ErrEventNotFound) {
			t.Errorf("expected ErrEventNotFound for resolved event, got %v", err)
		}
	})
}

func TestEventRepositorySnooze(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	until := time.Now().Add(time.Hour)
	mock.ExpectExec(`UPDATE alert_events`).
		WithArgs(int64(100), int64(10), until).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewEventRepository(db)
	if err := repo.Snooze(100, 10, until); err != nil {
		t.Errorf("Snooze failed: %v", err)
	}
}

func TestEventRepositoryClearElapsedSnoozes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`UPDATE alert_events`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewEventRepository(db)
	count, err := repo.ClearElapsedSnoozes(now)
	if err != nil {
		t.Fatalf("ClearElapsedSnoozes failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 cleared snoozes, got %d", count)
	}
}

func TestEventRepositorySetNotificationResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE alert_events`).
		WithArgs(int64(100), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewEventRepository(db)
	err = repo.SetNotificationResult(100, true, []string{"telegram", "email"}, map[string]string{"telegram": "777"})
	if err != nil {
		t.Errorf("SetNotificationResult failed: %v", err)
	}
}

func TestEventRepositoryListUnnotified(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	olderThan := time.Now()
	mock.ExpectQuery(`SELECT (.+) FROM alert_events`).
		WithArgs(olderThan, 100).
		WillReturnRows(eventRows(sampleEvent()))

	repo := NewEventRepository(db)
	events, err := repo.ListUnnotified(olderThan, 0)
	if err != nil {
		t.Fatalf("ListUnnotified failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}
