package telemetry

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service name"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
			},
			wantErr: "requires an endpoint",
		},
		{name: "sampling rate", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: "sampling rate"},
		{
			name: "async without buffer",
			mutate: func(c *Config) {
				c.Events.EnableAsync = true
				c.Events.BufferSize = 0
			},
			wantErr: "buffer size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoggerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.NewComponentLogger("session").WithHubID(7).Info("Hub selected")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, `"component":"session"`) {
		t.Errorf("missing component field: %s", out)
	}
	if !strings.Contains(out, `"hub_id":7`) {
		t.Errorf("missing hub_id field: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at info level: %s", out)
	}
}

func TestFromContextFallbacks(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected a no-op logger without context")
	}

	var buf bytes.Buffer
	tel := &Telemetry{Logger: NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)}
	ctx := context.WithValue(context.Background(), telemetryContextKey{}, tel)
	FromContext(ctx).Info("via telemetry")

	if !strings.Contains(buf.String(), "via telemetry") {
		t.Errorf("expected logger from telemetry, got %q", buf.String())
	}
}

func TestEventPublisherSyncOrder(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	var got []string
	ep.Subscribe(func(e Event) { got = append(got, e.Message) }, FilterByType(EventTypeHubSelected))

	for _, msg := range []string{"a", "b", "c"} {
		if err := ep.Publish(Event{Type: EventTypeHubSelected, Message: msg}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}
	_ = ep.Publish(Event{Type: EventTypeError, Message: "filtered"})

	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("unexpected delivery order: %v", got)
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 16})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	var mu sync.Mutex
	var got []Event
	ep.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}, FilterByType(EventTypeCacheFailed))

	_ = ep.Publish(Event{Type: EventTypeCacheFailed, Level: EventLevelError, Message: "boom"})
	_ = ep.Publish(Event{Type: EventTypeHubSelected, Message: "info only"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Message != "boom" {
		t.Fatalf("expected only the cache failure, got %+v", got)
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Errorf("expected id and timestamp to be filled in: %+v", got[0])
	}
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	if err := ep.Publish(Event{Type: EventTypeHubSelected}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if called {
		t.Error("disabled publisher delivered an event")
	}
}

func TestMetricsRecording(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "apt"})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.RecordAPICall("get_folders", 200, 10*time.Millisecond)
	m.RecordAPICall("get_folders", 0, time.Millisecond)
	m.RecordAPIError("get_folders", "transient")
	m.RecordRefetch(false)
	m.SetCacheObjects("folders", 12)

	if v := testutil.ToFloat64(m.apiCalls.WithLabelValues("get_folders", "200")); v != 1 {
		t.Errorf("expected 1 call with status 200, got %v", v)
	}
	if v := testutil.ToFloat64(m.apiCalls.WithLabelValues("get_folders", "none")); v != 1 {
		t.Errorf("expected 1 call without response, got %v", v)
	}
	if v := testutil.ToFloat64(m.cacheRefetches.WithLabelValues("failure")); v != 1 {
		t.Errorf("expected 1 failed refetch, got %v", v)
	}
	if v := testutil.ToFloat64(m.cacheObjects.WithLabelValues("folders")); v != 12 {
		t.Errorf("expected 12 cached folders, got %v", v)
	}
}

func TestDisabledMetricsAreNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	m.RecordAPICall("x", 200, time.Millisecond)
	m.RecordSelection("hub")
	if m.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
	if err := m.StartMetricsServer(NopLogger()); err != nil {
		t.Errorf("start on disabled metrics: %v", err)
	}
}
