package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cohere-bridge/internal/translator"
)

type recordingSink struct {
	chunks   []translator.ChatCompletionChunk
	closes   int
	writeErr error
	failAt   int
}

func (s *recordingSink) WriteData(payload any) error {
	if s.writeErr != nil && len(s.chunks) == s.failAt {
		return s.writeErr
	}
	s.chunks = append(s.chunks, payload.(translator.ChatCompletionChunk))
	return nil
}

func (s *recordingSink) Close() error {
	s.closes++
	return nil
}

func (s *recordingSink) contents() []string {
	out := make([]string, 0, len(s.chunks))
	for _, c := range s.chunks {
		if fr := c.Choices[0].FinishReason; fr != nil {
			out = append(out, "<"+*fr+">")
			continue
		}
		out = append(out, c.Choices[0].Delta.Content)
	}
	return out
}

type trackingBody struct {
	io.Reader
	closes int
}

func (b *trackingBody) Close() error {
	b.closes++
	return nil
}

func newPipeline() *Pipeline {
	return NewPipeline(translator.NewEventTranslator("command-r", 1, nil), nil)
}

const sampleStream = `{"event_type":"stream-start","generation_id":"g","is_finished":false}
{"event_type":"text-generation","text":"Hel","is_finished":false}
{"event_type":"text-generation","text":"lo","is_finished":false}
{"event_type":"stream-end","finish_reason":"COMPLETE","is_finished":true}
`

func TestPipelineTranslatesInOrder(t *testing.T) {
	body := &trackingBody{Reader: iotest.HalfReader(strings.NewReader(sampleStream))}
	sink := &recordingSink{}

	require.NoError(t, newPipeline().Run(context.Background(), body, sink))

	assert.Equal(t, []string{"Hel", "lo", "<stop>"}, sink.contents())
	assert.Equal(t, 1, sink.closes)
	assert.Equal(t, 1, body.closes)
}

func TestPipelineStreamEndingMidLine(t *testing.T) {
	input := `{"event_type":"text-generation","text":"Hi","is_finished":false}
{"event_type":"text-gen`
	body := &trackingBody{Reader: strings.NewReader(input)}
	sink := &recordingSink{}

	require.NoError(t, newPipeline().Run(context.Background(), body, sink))

	assert.Equal(t, []string{"Hi"}, sink.contents())
	assert.Equal(t, 1, sink.closes)
}

func TestPipelineSkipsMalformedLines(t *testing.T) {
	input := "{\"event_type\":\"text-generation\",\"text\":\"a\"}\nnot json\n\n{\"event_type\":\"text-generation\",\"text\":\"b\"}\n"
	sink := &recordingSink{}

	require.NoError(t, newPipeline().Run(context.Background(), &trackingBody{Reader: strings.NewReader(input)}, sink))

	assert.Equal(t, []string{"a", "b"}, sink.contents())
}

func TestPipelineEmptyStream(t *testing.T) {
	sink := &recordingSink{}

	require.NoError(t, newPipeline().Run(context.Background(), &trackingBody{Reader: strings.NewReader("")}, sink))

	assert.Empty(t, sink.chunks)
	assert.Equal(t, 1, sink.closes)
}

func TestPipelineReadError(t *testing.T) {
	boom := errors.New("connection reset")
	reader := io.MultiReader(
		strings.NewReader("{\"event_type\":\"text-generation\",\"text\":\"a\"}\n"),
		iotest.ErrReader(boom),
	)
	body := &trackingBody{Reader: reader}
	sink := &recordingSink{}

	err := newPipeline().Run(context.Background(), body, sink)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, sink.contents())
	assert.Equal(t, 1, sink.closes)
	assert.Equal(t, 1, body.closes)
}

func TestPipelineWriteError(t *testing.T) {
	gone := errors.New("client went away")
	body := &trackingBody{Reader: strings.NewReader(sampleStream)}
	sink := &recordingSink{writeErr: gone, failAt: 1}

	err := newPipeline().Run(context.Background(), body, sink)

	assert.ErrorIs(t, err, gone)
	assert.Equal(t, []string{"Hel"}, sink.contents())
	assert.Equal(t, 1, sink.closes)
	assert.Equal(t, 1, body.closes)
}

func TestPipelineStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	body := &trackingBody{Reader: strings.NewReader("{\"event_type\":\"text-generation\",\"text\":\"a\"}\n")}
	sink := &recordingSink{}

	err := newPipeline().Run(ctx, body, sink)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.chunks)
	assert.Equal(t, 1, sink.closes)
	assert.Equal(t, 1, body.closes)
}

type cancelOnWriteSink struct {
	recordingSink
	cancel context.CancelFunc
}

func (s *cancelOnWriteSink) WriteData(payload any) error {
	s.cancel()
	return s.recordingSink.WriteData(payload)
}

func TestPipelineStopsBetweenEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	body := &trackingBody{Reader: strings.NewReader(sampleStream)}
	sink := &cancelOnWriteSink{cancel: cancel}

	err := newPipeline().Run(ctx, body, sink)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"Hel"}, sink.contents())
	assert.Equal(t, 1, sink.closes)
}
