// Package logging fans structured match telemetry out to pluggable sinks.
// Code deep in the tick loop publishes typed events — admission drops,
// protocol anomalies, lifecycle transitions, replay outcomes — through the
// per-domain helper packages; the Router filters, stamps, and queues them
// without ever blocking the simulation.
package logging

import (
	"context"
	"time"
)

// EventType namespaces an event, e.g. "admission.input_dropped".
type EventType string

// Severity expresses the importance of an event.
type Severity int

const (
	// SeverityDebug is verbose information for diagnostics.
	SeverityDebug Severity = iota
	// SeverityInfo is routine operational telemetry.
	SeverityInfo
	// SeverityWarn indicates a recoverable anomaly.
	SeverityWarn
	// SeverityError indicates a failure that likely needs attention.
	SeverityError
)

// Category groups events by subsystem for filtering: admission, protocol,
// lifecycle, replay.
type Category string

// EntityKind differentiates actors within a match.
type EntityKind string

// EntityRef identifies the actor an event is about.
type EntityRef struct {
	ID   string
	Kind EntityKind
}

// Event is one semantic occurrence inside the match process.
type Event struct {
	Type     EventType
	Tick     uint64
	Time     time.Time
	Actor    EntityRef
	Severity Severity
	Category Category
	Payload  any
	Extra    map[string]any
}

// Publisher emits telemetry events without blocking the tick loop.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// NopPublisher is a Publisher that drops all events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}
