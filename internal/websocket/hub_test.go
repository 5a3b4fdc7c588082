package websocket

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"alertd/internal/models"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := &OriginChecker{
		allowedOrigins: map[string]struct{}{
			"http://localhost:3000": {},
			"https://example.com":   {},
		},
		allowAll: false,
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},                       // empty origin allowed
		{"http://localhost:3000", true},  // allowed
		{"https://example.com", true},    // allowed
		{"http://evil.com", false},       // not allowed
		{"http://localhost:8080", false}, // not in list
	}

	for _, tt := range tests {
		got := checker.Check(tt.origin)
		if got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	checker := &OriginChecker{
		allowAll: true,
	}

	origins := []string{
		"http://localhost:3000",
		"https://evil.com",
		"http://anything.example.org",
	}

	for _, origin := range origins {
		if !checker.Check(origin) {
			t.Errorf("allowAll=true but Check(%q) = false", origin)
		}
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	// Run не запущен намеренно: канал быстро переполняется
	for i := 0; i < 10000; i++ {
		hub.Broadcast([]byte(`{"type":"alert_event"}`))
	}

	if hub.DroppedMessages() == 0 {
		t.Error("expected dropped messages when broadcast channel is full")
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Stop()

	select {
	case <-done:
		// OK - Run() exited
	case <-time.After(1 * time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

func TestHub_BroadcastDeliversToClients(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	go hub.Run()
	defer hub.Stop()

	client := &Client{
		hub:  hub,
		send: make(chan []byte, clientSendBufferSize),
	}
	hub.register <- client

	for hub.ClientCount() != 1 {
		time.Sleep(time.Millisecond)
	}

	hub.Broadcast([]byte(`{"type":"alert_event"}`))

	select {
	case msg := <-client.send:
		if string(msg) != `{"type":"alert_event"}` {
			t.Errorf("unexpected message: %s", msg)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("client did not receive broadcast")
	}

	hub.unregister <- client
	for hub.ClientCount() != 0 {
		time.Sleep(time.Millisecond)
	}
}

func TestHub_BroadcastEventSerializes(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	go hub.Run()
	defer hub.Stop()

	client := &Client{
		hub:  hub,
		send: make(chan []byte, clientSendBufferSize),
	}
	hub.register <- client

	for hub.ClientCount() != 1 {
		time.Sleep(time.Millisecond)
	}

	event := &models.AlertEvent{
		ID:          42,
		AlertID:     7,
		UserID:      1,
		TriggeredAt: time.Now(),
		Status:      models.EventStatusTriggered,
	}
	hub.BroadcastEvent(event)

	select {
	case msg := <-client.send:
		payload := string(msg)
		if !strings.Contains(payload, `"type":"alert_event"`) {
			t.Errorf("missing message type: %s", payload)
		}
		if !strings.Contains(payload, `"alert_id":7`) {
			t.Errorf("missing alert id: %s", payload)
		}
		if strings.HasSuffix(payload, "\n") {
			t.Error("trailing newline not stripped")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("client did not receive event")
	}
}

func TestHub_SlowClientRemoved(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	go hub.Run()
	defer hub.Stop()

	// Клиент с буфером на одно сообщение, который никто не читает
	client := &Client{
		hub:  hub,
		send: make(chan []byte, 1),
	}
	hub.register <- client

	for hub.ClientCount() != 1 {
		time.Sleep(time.Millisecond)
	}

	hub.Broadcast([]byte(`first`))
	hub.Broadcast([]byte(`second`))

	deadline := time.Now().Add(1 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not removed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	go hub.Run()
	defer hub.Stop()

	var wg sync.WaitGroup
	const goroutines = 10
	const operations = 1000

	// Concurrent broadcasts
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				hub.Broadcast([]byte(`{"type":"event_update"}`))
			}
		}()
	}

	// Concurrent ClientCount reads
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				_ = hub.ClientCount()
			}
		}()
	}

	wg.Wait()
}
