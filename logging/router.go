package logging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Sink consumes events dispatched by the router.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// routerMetrics counts what the router did with the events it was handed.
type routerMetrics struct {
	eventsTotal        atomic.Uint64
	eventsDroppedTotal atomic.Uint64
	sinkErrorsTotal    atomic.Uint64
	sinkDisabledTotal  atomic.Uint64
}

type namedSink struct {
	name string
	sink Sink
}

// Router fans events out from publishers to the configured sinks. Publish
// never blocks: accepted events land in a bounded queue and a single
// dispatch goroutine writes them to each sink in turn. A full queue drops
// the event and counts the drop; a sink write error is counted and logged
// to the fallback logger, never surfaced to the publisher.
type Router struct {
	cfg      Config
	clock    Clock
	fallback *log.Logger
	queue    chan Event
	sinks    []namedSink
	wg       sync.WaitGroup
	metrics  routerMetrics
	sendMu   sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewRouter constructs a Router over the sinks named in cfg.EnabledSinks,
// looked up in available. A named sink that is not available is counted as
// disabled and logged, not fatal.
func NewRouter(cfg Config, clock Clock, fallback *log.Logger, available map[string]Sink) (*Router, error) {
	if cfg.BufferSize <= 0 {
		return nil, errors.New("logging: buffer size must be positive")
	}
	if fallback == nil {
		fallback = log.Default()
	}
	if clock == nil {
		clock = SystemClock{}
	}

	r := &Router{
		cfg:      cfg,
		clock:    clock,
		fallback: fallback,
		queue:    make(chan Event, cfg.BufferSize),
	}

	seen := make(map[string]struct{}, len(cfg.EnabledSinks))
	for _, name := range cfg.EnabledSinks {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		sink, ok := available[name]
		if !ok {
			r.metrics.sinkDisabledTotal.Add(1)
			fallback.Printf("logging: sink %q unavailable", name)
			continue
		}
		r.sinks = append(r.sinks, namedSink{name: name, sink: sink})
	}

	r.wg.Add(1)
	go r.dispatch()

	return r, nil
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	for event := range r.queue {
		for _, entry := range r.sinks {
			if err := entry.sink.Write(event); err != nil {
				r.metrics.sinkErrorsTotal.Add(1)
				r.fallback.Printf("logging: sink %s write failed: %v", entry.name, err)
			}
		}
	}
}

// Publish implements Publisher. Events below the minimum severity or
// outside the configured categories vanish silently; accepted events are
// stamped with the router clock and any static metadata, then queued.
func (r *Router) Publish(ctx context.Context, event Event) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return
		default:
		}
	}

	if event.Severity < r.cfg.MinSeverity {
		return
	}
	if len(r.cfg.Categories) > 0 {
		allowed := false
		for _, cat := range r.cfg.Categories {
			if cat == event.Category {
				allowed = true
				break
			}
		}
		if !allowed {
			return
		}
	}

	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	if len(r.cfg.Metadata) > 0 {
		if event.Extra == nil {
			event.Extra = make(map[string]any, len(r.cfg.Metadata))
		}
		for k, v := range r.cfg.Metadata {
			if _, exists := event.Extra[k]; !exists {
				event.Extra[k] = v
			}
		}
	}

	r.sendMu.RLock()
	defer r.sendMu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- event:
		r.metrics.eventsTotal.Add(1)
	default:
		r.metrics.eventsDroppedTotal.Add(1)
		r.fallback.Printf("logging: dropping event %s (buffer full)", event.Type)
	}
}

// Close drains the queue, stops the dispatch goroutine, and closes every
// sink. Publish calls racing Close are dropped, not delivered.
func (r *Router) Close(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		r.sendMu.Lock()
		r.closed = true
		close(r.queue)
		r.sendMu.Unlock()
		r.wg.Wait()
		for _, entry := range r.sinks {
			if cerr := entry.sink.Close(ctx); cerr != nil {
				r.metrics.sinkErrorsTotal.Add(1)
				err = errors.Join(err, fmt.Errorf("sink %s: %w", entry.name, cerr))
			}
		}
	})
	return err
}

// MetricsSnapshot reports the router's own counters, served by the
// process's diagnostics endpoint.
func (r *Router) MetricsSnapshot() map[string]uint64 {
	return map[string]uint64{
		"events_total":         r.metrics.eventsTotal.Load(),
		"events_dropped_total": r.metrics.eventsDroppedTotal.Load(),
		"sink_errors_total":    r.metrics.sinkErrorsTotal.Load(),
		"sink_disabled_total":  r.metrics.sinkDisabledTotal.Load(),
	}
}
