package translator

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"cohere-bridge/internal/cohere"
)

// EventTranslator maps upstream stream events to chunks for one response.
// It holds no mutable state; every chunk it emits shares model and created.
type EventTranslator struct {
	model   string
	created int64
	logger  *slog.Logger
}

// NewEventTranslator creates a translator for a single streamed response.
func NewEventTranslator(model string, created int64, logger *slog.Logger) *EventTranslator {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventTranslator{
		model:   model,
		created: created,
		logger:  logger,
	}
}

// Translate returns the chunks for evt in emission order: a content chunk
// when the event carries text, then a terminal chunk when it finishes the
// stream. Tool-call announcements produce nothing because the same call
// arrives again as search results.
func (t *EventTranslator) Translate(evt cohere.Event) []ChatCompletionChunk {
	var text string

	switch e := evt.(type) {
	case cohere.ToolCallsGeneration:
		return nil
	case cohere.SearchResults:
		text = e.Text
		if e.QueryText != "" {
			inv, err := cohere.ParseToolInvocation(e.QueryText)
			if err != nil {
				t.logger.Warn("skipping unreadable tool invocation", "err", err)
			} else {
				text = RenderToolInvocation(inv)
			}
		}
	default:
		text = evt.Header().Text
	}

	var chunks []ChatCompletionChunk
	if text != "" {
		chunks = append(chunks, t.chunk(Delta{Role: roleAssistant, Content: text}, nil))
	}
	if evt.Header().Finished {
		stop := finishReasonStop
		chunks = append(chunks, t.chunk(Delta{}, &stop))
	}
	return chunks
}

func (t *EventTranslator) chunk(delta Delta, finishReason *string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      CompletionID,
		Object:  objectChatCompletionChunk,
		Created: t.created,
		Model:   t.model,
		Choices: []ChunkChoice{
			{Index: 0, Delta: delta, FinishReason: finishReason},
		},
	}
}

// RenderToolInvocation shows a tool call as a fenced block whose language
// tag and body depend on the tool.
func RenderToolInvocation(inv cohere.ToolInvocation) string {
	lang := inv.Name
	var body string

	switch inv.Name {
	case cohere.ToolPythonInterpreter:
		lang = "python"
		body = inv.Param("code")
	case cohere.ToolInternetSearch:
		lang = "txt"
		body = "Internet Search:" + inv.Param("query")
	case cohere.ToolCalculator:
		body = "Calc:" + inv.Param("expression")
	default:
		body = canonicalJSON(inv.Parameters)
	}

	return "\n```" + lang + "\n" + body + "\n```\n"
}

// canonicalJSON re-serializes raw in its original key order with escapes
// resolved, so "\u00e9" renders as "é".
func canonicalJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	if !gjson.ValidBytes(raw) {
		return string(raw)
	}
	var buf strings.Builder
	writeCanonical(&buf, gjson.ParseBytes(raw))
	return buf.String()
}

func writeCanonical(buf *strings.Builder, v gjson.Result) {
	switch {
	case v.IsObject():
		buf.WriteByte('{')
		first := true
		v.ForEach(func(key, value gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeString(buf, key.String())
			buf.WriteByte(':')
			writeCanonical(buf, value)
			return true
		})
		buf.WriteByte('}')
	case v.IsArray():
		buf.WriteByte('[')
		for i, item := range v.Array() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item)
		}
		buf.WriteByte(']')
	case v.Type == gjson.String:
		writeString(buf, v.String())
	default:
		buf.WriteString(v.Raw)
	}
}

func writeString(buf *strings.Builder, s string) {
	data, err := Encode(s)
	if err != nil {
		buf.WriteString(`""`)
		return
	}
	buf.Write(data)
}
