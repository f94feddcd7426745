// Package sse writes text/event-stream frames onto a fasthttp body stream
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"
)

// Stream frames events for one subscriber. Every write is flushed so
// proxies see progress as it happens.
type Stream struct {
	w     *bufio.Writer
	seq   int
	retry time.Duration
}

// NewStream wraps w. A non-zero retry is sent once, ahead of the first
// event, as the client's reconnect delay.
func NewStream(w *bufio.Writer, retry time.Duration) *Stream {
	return &Stream{w: w, retry: retry}
}

// Event writes one named event with a JSON payload. Events are numbered
// from 1 so a client can tell whether it missed any.
func (s *Stream) Event(name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", name, err)
	}

	s.seq++
	if s.seq == 1 && s.retry > 0 {
		fmt.Fprintf(s.w, "retry: %d\n", s.retry.Milliseconds())
	}
	fmt.Fprintf(s.w, "id: %d\n", s.seq)
	if name != "" {
		fmt.Fprintf(s.w, "event: %s\n", name)
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	return s.w.Flush()
}

// Ping writes a comment frame that keeps idle connections open
func (s *Stream) Ping() error {
	if _, err := s.w.WriteString(": ping\n\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// Fail writes a terminal error event
func (s *Stream) Fail(code, message string) error {
	return s.Event("error", map[string]string{
		"type":    "error",
		"error":   code,
		"message": message,
	})
}
