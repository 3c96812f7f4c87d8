package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"cohere-bridge/internal/translator"
)

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("event stream writer closed")

// Sink receives translated payloads. Close is called exactly once, after the
// last payload.
type Sink interface {
	WriteData(payload any) error
	Close() error
}

// EventWriter frames payloads as SSE data events on an HTTP response.
type EventWriter struct {
	w       io.Writer
	flusher http.Flusher
	closed  bool
}

// NewEventWriter wraps w. Each event is flushed immediately when w supports it.
func NewEventWriter(w io.Writer) *EventWriter {
	flusher, _ := w.(http.Flusher)
	return &EventWriter{w: w, flusher: flusher}
}

// WriteData writes payload as a single `data: <json>` event.
func (w *EventWriter) WriteData(payload any) error {
	if w.closed {
		return ErrWriterClosed
	}

	data, err := translator.Encode(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	w.flush()
	return nil
}

// Close ends the event stream. No terminal sentinel is written; the end of
// the response body is the only end-of-stream signal.
func (w *EventWriter) Close() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.closed = true
	w.flush()
	return nil
}

func (w *EventWriter) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
