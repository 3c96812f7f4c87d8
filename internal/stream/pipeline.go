package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cohere-bridge/internal/cohere"
	"cohere-bridge/internal/metrics"
	"cohere-bridge/internal/translator"
)

// Pipeline moves one upstream stream through decoding and translation into
// a Sink. A Pipeline serves a single response and must not be reused.
type Pipeline struct {
	translator *translator.EventTranslator
	logger     *slog.Logger
}

// NewPipeline creates a pipeline around a per-response translator.
func NewPipeline(tr *translator.EventTranslator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		translator: tr,
		logger:     logger,
	}
}

// Run translates body into sink until the body ends, a read or write fails,
// or ctx is cancelled. Events are handled one at a time in arrival order and
// every chunk of an event is written before the next event is decoded. Both
// body and sink are closed exactly once before Run returns.
func (p *Pipeline) Run(ctx context.Context, body io.ReadCloser, sink Sink) (err error) {
	metrics.StreamingConnections.Inc()
	defer metrics.StreamingConnections.Dec()

	defer func() {
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close event stream: %w", closeErr)
		}
	}()
	defer body.Close()

	decoder := cohere.NewDecoder(body, p.logger)
	defer func() {
		if dropped := decoder.Dropped(); dropped > 0 {
			metrics.DroppedFramesTotal.Add(float64(dropped))
		}
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	for evt, readErr := range decoder.Events() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if readErr != nil {
			return fmt.Errorf("decode upstream stream: %w", readErr)
		}
		metrics.StreamEventsTotal.WithLabelValues(eventLabel(evt)).Inc()

		for _, chunk := range p.translator.Translate(evt) {
			if writeErr := sink.WriteData(chunk); writeErr != nil {
				return fmt.Errorf("write chunk: %w", writeErr)
			}
			metrics.StreamChunksTotal.Inc()
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return nil
}

// eventLabel keeps the event_type label bounded to the known event kinds.
func eventLabel(evt cohere.Event) string {
	if _, ok := evt.(cohere.Other); ok {
		return "other"
	}
	return evt.Header().Type
}
