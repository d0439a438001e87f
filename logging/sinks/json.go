package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"

	"duelcore/logging"
)

// JSONSink appends one JSON object per line to a file, for shipping
// structured events to external tooling. Writes go through a buffered
// writer flushed on Close; the router's dispatch goroutine is the only
// writer in practice, but the mutex keeps the sink safe regardless.
type JSONSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
}

// NewJSONSink opens (or creates, appending) the configured file.
func NewJSONSink(cfg logging.JSONConfig) (*JSONSink, error) {
	path := cfg.FilePath
	if path == "" {
		path = "events.jsonl"
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	enc.SetEscapeHTML(false)
	return &JSONSink{file: file, writer: writer, enc: enc}, nil
}

// Write satisfies logging.Sink.
func (s *JSONSink) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(event)
}

// Close flushes buffered lines and closes the file.
func (s *JSONSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
