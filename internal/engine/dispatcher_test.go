package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"alertd/internal/models"
	"alertd/internal/repository"
)

func strPtr(s string) *string {
	return &s
}

func testPreference() *models.NotificationPreference {
	return &models.NotificationPreference{
		UserID: 7,
		Channels: map[string]models.ChannelSetting{
			models.ChannelTelegram: {Enabled: true, Address: "123456"},
			models.ChannelEmail:    {Enabled: true, Address: "trader@example.com"},
		},
		Timezone: "UTC",
		Format:   models.FormatPlain,
	}
}

func testAlert() *models.Alert {
	return &models.Alert{
		ID:       1,
		UserID:   7,
		Name:     "NIFTY above 19500",
		Symbol:   "NIFTY",
		Priority: 3,
		Channels: []string{models.ChannelTelegram, models.ChannelEmail},
		Status:   models.AlertStatusActive,
	}
}

func testEvent() *models.AlertEvent {
	return &models.AlertEvent{
		ID:           42,
		AlertID:      1,
		UserID:       7,
		TriggeredAt:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Status:       models.EventStatusTriggered,
		TriggerValue: map[string]interface{}{"current_price": 19520.0, "threshold": 19500.0},
	}
}

func newTestDispatcher(events *mockEventStore, logs *mockLogStore, sender *mockSender) *Dispatcher {
	return NewDispatcher(&mockPreferenceStore{}, events, logs, sender, zap.NewNop(), 3, time.Millisecond, 2*time.Second)
}

func TestDispatchBothChannels(t *testing.T) {
	events := &mockEventStore{}
	logs := &mockLogStore{}
	sender := &mockSender{}
	d := newTestDispatcher(events, logs, sender)

	event := testEvent()
	d.Dispatch(context.Background(), testAlert(), event, testPreference(), time.Now())

	if got := sender.sentChannels(); len(got) != 2 {
		t.Fatalf("expected 2 sends, got %v", got)
	}
	if len(logs.sent) != 2 {
		t.Errorf("expected 2 MarkSent calls, got %d", len(logs.sent))
	}

	result, ok := events.lastResult()
	if !ok {
		t.Fatal("expected notification result to be persisted")
	}
	if !result.sent {
		t.Error("expected sent=true")
	}
	if len(result.channels) != 2 {
		t.Errorf("expected 2 attempted channels, got %v", result.channels)
	}
	if result.ids[models.ChannelTelegram] != "msg-telegram" {
		t.Errorf("expected telegram provider id recorded, got %v", result.ids)
	}
	if !event.NotificationSent {
		t.Error("expected event to be updated in place")
	}
}

func TestDispatchQuietHoursAllOrNothing(t *testing.T) {
	pref := testPreference()
	pref.QuietHoursStart = strPtr("00:00")
	pref.QuietHoursEnd = strPtr("23:59")
	pref.PriorityThreshold = 5

	tests := []struct {
		name     string
		priority int
		want     int
	}{
		{"ниже порога - подавлено целиком", 3, 0},
		{"на пороге - доставлено", 5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &mockEventStore{}
			logs := &mockLogStore{}
			sender := &mockSender{}
			d := newTestDispatcher(events, logs, sender)

			alert := testAlert()
			alert.Priority = tt.priority
			d.Dispatch(context.Background(), alert, testEvent(), pref, time.Now())

			if got := len(sender.sentChannels()); got != tt.want {
				t.Errorf("expected %d sends, got %d", tt.want, got)
			}
			if tt.want == 0 && len(logs.pending) != 0 {
				t.Errorf("suppressed event must not create log rows, got %v", logs.pending)
			}

			result, ok := events.lastResult()
			if !ok {
				t.Fatal("notification result must be persisted even when suppressed")
			}
			if result.sent != (tt.want > 0) {
				t.Errorf("expected sent=%v, got %v", tt.want > 0, result.sent)
			}
		})
	}
}

func TestDispatchChannelFailureIsIndependent(t *testing.T) {
	events := &mockEventStore{}
	logs := &mockLogStore{}
	sender := &mockSender{errs: map[string][]error{
		models.ChannelTelegram: {permanentProviderErr(models.ChannelTelegram, 400)},
	}}
	d := newTestDispatcher(events, logs, sender)

	d.Dispatch(context.Background(), testAlert(), testEvent(), testPreference(), time.Now())

	if got := sender.sentChannels(); len(got) != 1 || got[0] != models.ChannelEmail {
		t.Fatalf("expected only email to succeed, got %v", got)
	}
	if len(logs.failed) != 1 {
		t.Errorf("expected 1 MarkFailed, got %d", len(logs.failed))
	}
	if len(logs.sent) != 1 {
		t.Errorf("expected 1 MarkSent, got %d", len(logs.sent))
	}

	result, _ := events.lastResult()
	if !result.sent {
		t.Error("expected sent=true when at least one channel succeeded")
	}
	if len(result.channels) != 2 {
		t.Errorf("both attempted channels must be recorded, got %v", result.channels)
	}
}

func TestDispatchRetriesTransientErrors(t *testing.T) {
	events := &mockEventStore{}
	logs := &mockLogStore{}
	sender := &mockSender{errs: map[string][]error{
		models.ChannelTelegram: {
			permanentProviderErr(models.ChannelTelegram, 503),
			permanentProviderErr(models.ChannelTelegram, 503),
			nil,
		},
	}}
	d := newTestDispatcher(events, logs, sender)

	alert := testAlert()
	alert.Channels = []string{models.ChannelTelegram}
	d.Dispatch(context.Background(), alert, testEvent(), testPreference(), time.Now())

	if got := sender.sentChannels(); len(got) != 1 {
		t.Fatalf("expected success after retries, got %v", got)
	}
	if len(logs.failed) != 0 {
		t.Errorf("expected no MarkFailed, got %d", len(logs.failed))
	}
}

func TestDispatchPermanentErrorNotRetried(t *testing.T) {
	events := &mockEventStore{}
	logs := &mockLogStore{}
	sender := &mockSender{errs: map[string][]error{
		models.ChannelTelegram: {
			permanentProviderErr(models.ChannelTelegram, 404),
			nil, // до этой попытки дойти не должно
		},
	}}
	d := newTestDispatcher(events, logs, sender)

	alert := testAlert()
	alert.Channels = []string{models.ChannelTelegram}
	d.Dispatch(context.Background(), alert, testEvent(), testPreference(), time.Now())

	if got := sender.sentChannels(); len(got) != 0 {
		t.Fatalf("permanent error must not be retried, got %v", got)
	}
	if len(logs.failed) != 1 {
		t.Errorf("expected 1 MarkFailed, got %d", len(logs.failed))
	}
}

func TestDispatchDeduplication(t *testing.T) {
	events := &mockEventStore{}
	logs := &mockLogStore{pendingErr: map[string]error{
		models.ChannelTelegram: repository.ErrDuplicateDelivery,
	}}
	sender := &mockSender{}
	d := newTestDispatcher(events, logs, sender)

	d.Dispatch(context.Background(), testAlert(), testEvent(), testPreference(), time.Now())

	if got := sender.sentChannels(); len(got) != 1 || got[0] != models.ChannelEmail {
		t.Fatalf("duplicate channel must be skipped, got %v", got)
	}
}

func TestDispatchRateLimitDropsRemaining(t *testing.T) {
	events := &mockEventStore{}
	logs := &mockLogStore{pendingErr: map[string]error{
		models.ChannelTelegram: repository.ErrRateLimited,
	}}
	sender := &mockSender{}
	d := newTestDispatcher(events, logs, sender)

	d.Dispatch(context.Background(), testAlert(), testEvent(), testPreference(), time.Now())

	// telegram уперся в часовой лимит: email тоже не отправляется
	if got := sender.sentChannels(); len(got) != 0 {
		t.Fatalf("rate limit must drop remaining channels, got %v", got)
	}

	result, _ := events.lastResult()
	if result.sent {
		t.Error("expected sent=false when everything was dropped")
	}
}

func TestDispatchSkipsDisabledChannels(t *testing.T) {
	pref := testPreference()
	pref.Channels[models.ChannelEmail] = models.ChannelSetting{Enabled: false, Address: "trader@example.com"}

	events := &mockEventStore{}
	logs := &mockLogStore{}
	sender := &mockSender{}
	d := newTestDispatcher(events, logs, sender)

	d.Dispatch(context.Background(), testAlert(), testEvent(), pref, time.Now())

	if got := sender.sentChannels(); len(got) != 1 || got[0] != models.ChannelTelegram {
		t.Fatalf("disabled channel must be skipped, got %v", got)
	}
}

func TestDispatchMergesPriorResult(t *testing.T) {
	events := &mockEventStore{}
	logs := &mockLogStore{pendingErr: map[string]error{
		models.ChannelTelegram: repository.ErrDuplicateDelivery,
	}}
	sender := &mockSender{}
	d := newTestDispatcher(events, logs, sender)

	// Повторная диспетчеризация: telegram уже доставлен раньше
	event := testEvent()
	event.NotificationSent = true
	event.NotificationChannels = []string{models.ChannelTelegram}
	event.NotificationIDs = map[string]string{models.ChannelTelegram: "msg-old"}

	d.Dispatch(context.Background(), testAlert(), event, testPreference(), time.Now())

	result, _ := events.lastResult()
	if !result.sent {
		t.Error("prior sent=true must be preserved")
	}
	if result.ids[models.ChannelTelegram] != "msg-old" {
		t.Errorf("prior provider id must be preserved, got %v", result.ids)
	}
	if result.ids[models.ChannelEmail] != "msg-email" {
		t.Errorf("new email provider id must be added, got %v", result.ids)
	}
	if len(result.channels) != 2 {
		t.Errorf("channels must be the union, got %v", result.channels)
	}
}

func TestRenderDetailedDeterministic(t *testing.T) {
	d := newTestDispatcher(&mockEventStore{}, &mockLogStore{}, &mockSender{})

	event := testEvent()
	event.TriggerValue = map[string]interface{}{
		"threshold":     19500.0,
		"current_price": 19520.0,
		"operator":      ">=",
	}

	_, first := d.render(testAlert(), event, models.FormatDetailed)
	for i := 0; i < 20; i++ {
		if _, body := d.render(testAlert(), event, models.FormatDetailed); body != first {
			t.Fatalf("detailed body must be stable across renders:\n%s\nvs\n%s", first, body)
		}
	}

	// Строки значений идут в отсортированном порядке ключей
	want := "current_price: 19520\noperator: >=\nthreshold: 19500"
	if !strings.Contains(first, want) {
		t.Errorf("expected sorted detail lines %q in body %q", want, first)
	}
}
