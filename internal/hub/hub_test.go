package hub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lodestone/internal/service"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHubFanout(t *testing.T) {
	bus := service.NewEventBus()
	h := New(bus)
	go h.Run()

	client := &Client{id: "test", events: make(chan []byte, 4)}
	h.register <- client
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	bus.Publish(service.Event{
		Type:    service.EventRecordCreated,
		Payload: map[string]any{"model": "location", "id": "abc"},
	})

	select {
	case msg := <-client.events:
		got := string(msg)
		if !strings.HasPrefix(got, "event: record_created\n") {
			t.Errorf("unexpected event line: %q", got)
		}
		if !strings.Contains(got, `"model":"location"`) {
			t.Errorf("expected payload in message, got %q", got)
		}
		if !strings.HasSuffix(got, "\n\n") {
			t.Errorf("message must end with a blank line, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	h.unregister <- client
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	if _, ok := <-client.events; ok {
		t.Error("expected client channel to be closed")
	}
}

func TestHubReplaysRecentEvents(t *testing.T) {
	bus := service.NewEventBus()
	h := New(bus)
	go h.Run()

	bus.Publish(service.Event{Type: service.EventDeploymentCreated, Payload: map[string]any{"name": "hq"}})
	waitFor(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.recent) == 1
	})

	late := &Client{id: "late", events: make(chan []byte, 4)}
	h.register <- late
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	select {
	case msg := <-late.events:
		if !strings.Contains(string(msg), "event: deployment_created") {
			t.Errorf("expected the replayed deployment event, got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replayed event")
	}
}

func TestHubServeHTTP(t *testing.T) {
	bus := service.NewEventBus()
	h := New(bus)
	go h.Run()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req)
		close(done)
	}()

	waitFor(t, func() bool { return h.ClientCount() == 1 })
	bus.Publish(service.Event{Type: service.EventDesignApplied, Payload: map[string]any{"design": "site"}})

	// Let the fanout reach the connection before closing it.
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return on disconnect")
	}
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, ": connected") {
		t.Errorf("expected connect comment, got %q", body)
	}
	if !strings.Contains(body, "event: design_applied") {
		t.Errorf("expected applied event in stream, got %q", body)
	}
}
