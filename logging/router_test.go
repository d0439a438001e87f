package logging_test

import (
	"context"
	"testing"

	"duelcore/logging"
	"duelcore/logging/sinks"
)

func newMemoryRouter(t *testing.T, cfg logging.Config) (*logging.Router, *sinks.Memory) {
	t.Helper()
	mem := sinks.NewMemory()
	router, err := logging.NewRouter(cfg, logging.SystemClock{}, nil, map[string]logging.Sink{"memory": mem})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router, mem
}

func memoryConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	return cfg
}

func TestRouterFansOutToEnabledSink(t *testing.T) {
	router, mem := newMemoryRouter(t, memoryConfig())

	router.Publish(context.Background(), logging.Event{Type: "test.event", Tick: 7, Severity: logging.SeverityInfo})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != "test.event" || events[0].Tick != 7 {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if events[0].Time.IsZero() {
		t.Fatal("event was not stamped with the router clock")
	}
	if got := router.MetricsSnapshot()["events_total"]; got != 1 {
		t.Fatalf("expected events_total=1, got %d", got)
	}
}

func TestRouterFiltersBelowMinSeverity(t *testing.T) {
	cfg := memoryConfig()
	cfg.MinSeverity = logging.SeverityWarn
	router, mem := newMemoryRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{Type: "test.debug", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "test.warn", Severity: logging.SeverityWarn})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected only the warn event, got %d events", len(events))
	}
	if events[0].Type != "test.warn" {
		t.Fatalf("wrong event survived the filter: %+v", events[0])
	}
}

func TestRouterFiltersByCategory(t *testing.T) {
	cfg := memoryConfig()
	cfg.Categories = []logging.Category{"admission"}
	router, mem := newMemoryRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{Type: "a", Category: "admission", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "b", Category: "lifecycle", Severity: logging.SeverityInfo})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := mem.Events()
	if len(events) != 1 || events[0].Category != "admission" {
		t.Fatalf("category filter failed: %+v", events)
	}
}

func TestRouterAttachesStaticMetadata(t *testing.T) {
	cfg := memoryConfig()
	cfg.Metadata = map[string]string{"match": "abc"}
	router, mem := newMemoryRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{Type: "test.event", Severity: logging.SeverityInfo})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if got := events[0].Extra["match"]; got != "abc" {
		t.Fatalf("metadata not attached, extra: %+v", events[0].Extra)
	}
}

func TestRouterDropsPublishAfterClose(t *testing.T) {
	router, mem := newMemoryRouter(t, memoryConfig())
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "test.late", Severity: logging.SeverityInfo})
	if events := mem.Events(); len(events) != 0 {
		t.Fatalf("expected no events after close, got %d", len(events))
	}
}

func TestRouterRejectsNonPositiveBufferSize(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.BufferSize = 0
	if _, err := logging.NewRouter(cfg, logging.SystemClock{}, nil, nil); err == nil {
		t.Fatal("expected an error for zero buffer size")
	}
}

func TestRouterCountsUnavailableSinkAsDisabled(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"missing"}
	router, err := logging.NewRouter(cfg, logging.SystemClock{}, nil, map[string]logging.Sink{})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer router.Close(context.Background())

	if got := router.MetricsSnapshot()["sink_disabled_total"]; got != 1 {
		t.Fatalf("expected sink_disabled_total=1, got %d", got)
	}
}
