package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"alertd/internal/models"
)

// ============================================================
// AlertRepository Tests
// ============================================================

func alertRows(alert *models.Alert) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "account_id", "strategy_id", "name", "condition_type", "condition_config",
		"symbol", "symbols", "exchange", "priority", "channels", "status",
		"evaluation_interval", "eval_window_start", "eval_window_end",
		"max_triggers_per_day", "cooldown_seconds", "one_shot",
		"trigger_count", "evaluation_count", "last_evaluated_at", "last_triggered_at", "expires_at",
		"created_at", "updated_at",
	}).AddRow(
		alert.ID, alert.UserID, alert.AccountID, alert.StrategyID, alert.Name,
		alert.ConditionType, []byte(alert.ConditionConfig),
		alert.Symbol, "{}", alert.Exchange, alert.Priority, `{telegram}`, alert.Status,
		alert.EvaluationInterval, alert.EvalWindowStart, alert.EvalWindowEnd,
		alert.MaxTriggersPerDay, alert.CooldownSeconds, alert.OneShot,
		alert.TriggerCount, alert.EvaluationCount, alert.LastEvaluatedAt, alert.LastTriggeredAt, alert.ExpiresAt,
		alert.CreatedAt, alert.UpdatedAt,
	)
}

func sampleAlert() *models.Alert {
	return &models.Alert{
		ID:                 1,
		UserID:             10,
		Name:               "NIFTY above 19500",
		ConditionType:      models.ConditionTypePrice,
		ConditionConfig:    []byte(`{"operator": ">=", "threshold": 19500}`),
		Symbol:             "NIFTY",
		Priority:           5,
		Channels:           []string{"telegram"},
		Status:             models.AlertStatusActive,
		EvaluationInterval: 60,
		CooldownSeconds:    300,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

func TestAlertRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO alerts`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
			},
			expectError: false,
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO alerts`).
					WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewAlertRepository(db)
			alert := sampleAlert()
			alert.ID = 0
			err = repo.Create(alert)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if alert.ID != 5 {
					t.Errorf("expected ID=5, got %d", alert.ID)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAlertRepositoryGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	alert := sampleAlert()
	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(alertRows(alert))

	repo := NewAlertRepository(db)
	got, err := repo.GetByID(1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.Name != alert.Name {
		t.Errorf("expected name %q, got %q", alert.Name, got.Name)
	}
	if got.ConditionType != models.ConditionTypePrice {
		t.Errorf("expected condition type price, got %s", got.ConditionType)
	}
	if len(got.Channels) != 1 || got.Channels[0] != "telegram" {
		t.Errorf("expected channels [telegram], got %v", got.Channels)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAlertRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(alertRows(sampleAlert()).RowError(0, errors.New("skip")))

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewAlertRepository(db)

	// Первая попытка с ошибкой строки
	if _, err := repo.GetByID(99); err == nil {
		t.Error("expected error for row error")
	}

	// Вторая попытка без строк - ErrAlertNotFound
	if _, err := repo.GetByID(99); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestAlertRepositoryMarkEvaluated(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`UPDATE alerts`).
		WithArgs(int64(1), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAlertRepository(db)
	if err := repo.MarkEvaluated(1, now); err != nil {
		t.Errorf("MarkEvaluated failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAlertRepositoryTriggerAtomic(t *testing.T) {
	now := time.Now()
	dayStart := now.Truncate(24 * time.Hour)

	tests := []struct {
		name          string
		mockSetup     func(mock sqlmock.Sqlmock)
		expectFired   bool
		expectError   bool
	}{
		{
			name: "fired",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`SELECT 1 FROM alerts WHERE id = \$1 FOR UPDATE`).
					WithArgs(int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`UPDATE alerts`).
					WithArgs(int64(1), now, dayStart).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(`INSERT INTO alert_events`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
				mock.ExpectCommit()
			},
			expectFired: true,
		},
		{
			name: "suppressed by cooldown or cap",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`SELECT 1 FROM alerts WHERE id = \$1 FOR UPDATE`).
					WithArgs(int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`UPDATE alerts`).
					WithArgs(int64(1), now, dayStart).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			expectFired: false,
		},
		{
			name: "insert failure rolls back",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`SELECT 1 FROM alerts WHERE id = \$1 FOR UPDATE`).
					WithArgs(int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`UPDATE alerts`).
					WithArgs(int64(1), now, dayStart).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(`INSERT INTO alert_events`).
					WillReturnError(errors.New("insert failed"))
				mock.ExpectRollback()
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewAlertRepository(db)
			event, fired, err := repo.TriggerAtomic(sampleAlert(), now, dayStart,
				map[string]interface{}{"price": 19520.5},
				map[string]interface{}{"operator": ">="},
			)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if fired != tt.expectFired {
					t.Errorf("expected fired=%v, got %v", tt.expectFired, fired)
				}
				if tt.expectFired {
					if event == nil || event.ID != 100 {
						t.Errorf("expected event with ID=100, got %+v", event)
					}
					if event.Status != models.EventStatusTriggered {
						t.Errorf("expected status triggered, got %s", event.Status)
					}
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAlertRepositorySoftDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE alerts SET status = 'deleted'`).
		WithArgs(int64(1), int64(10), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`UPDATE alerts SET status = 'deleted'`).
		WithArgs(int64(1), int64(99), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewAlertRepository(db)

	if err := repo.SoftDelete(1, 10); err != nil {
		t.Errorf("SoftDelete failed: %v", err)
	}

	// Чужой пользователь - алерт не найден
	if err := repo.SoftDelete(1, 99); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestAlertRepositoryExpireDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`UPDATE alerts`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := NewAlertRepository(db)
	count, err := repo.ExpireDue(now)
	if err != nil {
		t.Fatalf("ExpireDue failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 expired alerts, got %d", count)
	}
}
