package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// EventStream writes server-sent events to a response.
type EventStream struct {
	w  io.Writer
	rc *http.ResponseController
}

// NewEventStream sets the event-stream headers and sends the status line.
func NewEventStream(w http.ResponseWriter) *EventStream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &EventStream{w: w, rc: http.NewResponseController(w)}
	_ = s.flush()
	return s
}

// Send writes one event frame and flushes it. Each line of data becomes its
// own data field.
func (s *EventStream) Send(event, data string) error {
	if err := WriteEvent(s.w, event, data); err != nil {
		return err
	}
	return s.flush()
}

func (s *EventStream) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}

// WriteEvent writes a single event frame to w.
func WriteEvent(w io.Writer, event, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
