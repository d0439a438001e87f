// Package sinks provides the Sink implementations the router can fan out
// to: a human-readable console line writer, a JSON-lines file writer, and
// an in-memory buffer for tests.
package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"duelcore/logging"
)

// ConsoleSink renders each event as one line through a standard library
// logger, the default sink for a locally run server.
type ConsoleSink struct {
	logger *log.Logger
}

// NewConsoleSink writes timestamped lines to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{logger: log.New(w, "", log.LstdFlags)}
}

// Write satisfies logging.Sink.
func (s *ConsoleSink) Write(event logging.Event) error {
	s.logger.Printf("%s [%s] tick=%d actor=%s%s",
		severityLabel(event.Severity), event.Type, event.Tick, entityLabel(event.Actor), payloadSuffix(event.Payload))
	return nil
}

// Close satisfies logging.Sink.
func (s *ConsoleSink) Close(context.Context) error { return nil }

func severityLabel(sev logging.Severity) string {
	switch sev {
	case logging.SeverityDebug:
		return "debug"
	case logging.SeverityInfo:
		return "info"
	case logging.SeverityWarn:
		return "warn"
	case logging.SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

func entityLabel(ref logging.EntityRef) string {
	switch {
	case ref.ID == "":
		return string(ref.Kind)
	case ref.Kind == "":
		return ref.ID
	default:
		return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
	}
}

func payloadSuffix(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
