package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("default config should be enabled")
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 5*time.Second {
		t.Errorf("expected RetryDelay 5s, got %v", cfg.RetryDelay)
	}
	if cfg.AsyncQueueSize != 100 {
		t.Errorf("expected AsyncQueueSize 100, got %d", cfg.AsyncQueueSize)
	}
}

func TestClientSendSync(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled:    true,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{EventSessionTerminated}, Enabled: true},
		},
	})
	defer client.Close()

	err := client.Send(Event{
		Event:     EventSessionTerminated,
		SessionID: "s-1",
		Round:     "coding",
		Cause:     "tab_switch",
	}, false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if received == nil {
		t.Fatal("expected event to be received")
	}
	if received["event"] != string(EventSessionTerminated) {
		t.Errorf("expected event %s, got %v", EventSessionTerminated, received["event"])
	}
	if received["round"] != "coding" {
		t.Errorf("expected round coding, got %v", received["round"])
	}
	if received["timestamp"] == "" {
		t.Error("expected timestamp to be filled in")
	}
}

func TestClientSendWithSignature(t *testing.T) {
	var signature string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get("X-Vidyamitra-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	secret := "test-secret-key"
	client := NewClient(&Config{
		Enabled:    true,
		MaxRetries: 1,
		Hooks: []HookConfig{
			{URL: server.URL, Secret: secret, Events: []EventType{EventFlowReset}, Enabled: true},
		},
	})
	defer client.Close()

	if err := client.Send(Event{Event: EventFlowReset, UserID: "42"}, false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if signature != Sign(body, secret) {
		t.Errorf("signature mismatch: got %s", signature)
	}
}

func TestClientSendAsync(t *testing.T) {
	calls := make(chan struct{}, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled:        true,
		MaxRetries:     1,
		AsyncQueueSize: 10,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{EventSessionWarned}, Enabled: true},
		},
	})
	defer client.Close()

	if err := client.SendSessionWarned("s-1", "42", "coding", "presence", 2, "Warning 2/5"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for async webhook")
	}
}

func TestClientRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled:    true,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{"*"}, Enabled: true},
		},
	})
	defer client.Close()

	if err := client.Send(Event{Event: EventSessionBlocked}, false); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestClientDisabled(t *testing.T) {
	var called int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled: false,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{"*"}, Enabled: true},
		},
	})
	defer client.Close()

	if err := client.Send(Event{Event: EventFlowReset}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&called) != 0 {
		t.Error("disabled client must not call hooks")
	}
}

func TestClientEventFiltering(t *testing.T) {
	var called int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled: true,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{EventSessionTerminated}, Enabled: true},
			{URL: server.URL, Events: []EventType{"*"}, Enabled: false},
		},
	})
	defer client.Close()

	client.Send(Event{Event: EventSessionWarned}, false)
	if atomic.LoadInt32(&called) != 0 {
		t.Errorf("expected no calls for unsubscribed event, got %d", called)
	}

	client.Send(Event{Event: EventSessionTerminated}, false)
	if atomic.LoadInt32(&called) != 1 {
		t.Errorf("expected 1 call, got %d", called)
	}
}

func TestClientConnectionError(t *testing.T) {
	client := NewClient(&Config{
		Enabled:    true,
		MaxRetries: 0,
		Hooks: []HookConfig{
			{URL: "http://127.0.0.1:1", Events: []EventType{"*"}, Enabled: true},
		},
	})
	defer client.Close()

	if err := client.Send(Event{Event: EventFlowReset}, false); err == nil {
		t.Error("expected connection error")
	}
}

func TestSendSessionTerminated_CarriesResetError(t *testing.T) {
	got := make(chan Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		json.NewDecoder(r.Body).Decode(&ev)
		got <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled:        true,
		AsyncQueueSize: 4,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{EventSessionTerminated}, Enabled: true},
		},
	})
	defer client.Close()

	client.SendSessionTerminated("s-9", "7", "hr", "presence", "terminated", errors.New("backend down"))

	select {
	case ev := <-got:
		if ev.Error != "backend down" {
			t.Errorf("expected reset error in payload, got %q", ev.Error)
		}
		if ev.Cause != "presence" {
			t.Errorf("expected cause presence, got %q", ev.Cause)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook")
	}
}

func TestClientGracefulShutdownFlushesQueue(t *testing.T) {
	var called int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled:        true,
		AsyncQueueSize: 10,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{"*"}, Enabled: true},
		},
	})

	for i := 0; i < 3; i++ {
		client.SendFlowReset("u", "test")
	}
	client.Close()

	if got := atomic.LoadInt32(&called); got != 3 {
		t.Errorf("expected 3 deliveries after close, got %d", got)
	}
}
