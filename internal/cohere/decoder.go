package cohere

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
)

const frameSeparator = '\n'

// Decoder turns the upstream byte stream into events, one newline-delimited
// JSON frame at a time. Frames may be split across any number of reads.
type Decoder struct {
	reader  *bufio.Reader
	logger  *slog.Logger
	dropped int
	err     error
}

// NewDecoder creates a decoder over r. Frames that fail to decode are logged
// to logger and skipped.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		reader: bufio.NewReaderSize(r, 64*1024),
		logger: logger,
	}
}

// Next returns the next event. It returns io.EOF once the stream is
// exhausted; any other error is a read failure and is sticky.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return nil, d.err
	}

	for {
		line, err := d.reader.ReadBytes(frameSeparator)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if fragment := bytes.TrimSpace(line); len(fragment) > 0 {
					d.logger.Debug("discarding unterminated stream frame", "bytes", len(fragment))
				}
				d.err = io.EOF
				return nil, io.EOF
			}
			d.err = fmt.Errorf("read stream frame: %w", err)
			return nil, d.err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		evt, err := DecodeEvent(line)
		if err != nil {
			d.dropped++
			d.logger.Warn("dropping malformed stream frame", "err", err, "bytes", len(line))
			continue
		}
		return evt, nil
	}
}

// Events yields decoded events until the stream ends. A read failure is
// yielded once as the final pair; a clean end of stream yields nothing.
func (d *Decoder) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			evt, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(evt, err) || err != nil {
				return
			}
		}
	}
}

// Dropped reports how many frames were skipped because they were not valid JSON.
func (d *Decoder) Dropped() int {
	return d.dropped
}
