package translator

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"cohere-bridge/internal/cohere"
	"cohere-bridge/internal/models"
)

// DefaultModel and DefaultPrompt apply when neither the request nor the
// configuration provides a value.
const (
	DefaultModel  = "command-r"
	DefaultPrompt = "hello"
)

// upstreamModelFamily is the prefix of model ids the upstream serves. A
// requested name in this family is sent upstream as-is, minus any routing prefix.
const upstreamModelFamily = "command"

// Defaults holds the fallback values used when a request is unusable or
// leaves fields out.
type Defaults struct {
	Model  string
	Prompt string
	// Params are the sampling parameters of the fallback request.
	Params []models.Param
}

// Fallback builds the request used when the inbound body cannot be parsed:
// a single user message, streamed, with the default sampling parameters.
func (d Defaults) Fallback(prompt string) models.ChatRequest {
	content := firstNonEmpty(prompt, d.Prompt, DefaultPrompt)
	params := make([]models.Param, len(d.Params))
	copy(params, d.Params)

	return models.ChatRequest{
		Messages: []models.Message{{Role: "user", Content: content}},
		Stream:   true,
		Params:   params,
	}
}

// ParseChatRequest decodes an inbound body. When the body is not a JSON
// object with a messages array, the fallback request built from the q query
// parameter is returned with false.
func ParseChatRequest(body []byte, query url.Values, defaults Defaults) (models.ChatRequest, bool) {
	if parsed, ok := parseBody(body); ok {
		return parsed, true
	}
	return defaults.Fallback(query.Get("q")), false
}

func parseBody(body []byte) (models.ChatRequest, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return models.ChatRequest{}, false
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return models.ChatRequest{}, false
	}

	messages := root.Get("messages")
	if !messages.IsArray() {
		return models.ChatRequest{}, false
	}
	items := messages.Array()

	req := models.ChatRequest{
		Model:    root.Get("model").String(),
		Stream:   root.Get("stream").Type == gjson.True,
		Messages: make([]models.Message, 0, len(items)),
	}

	for _, item := range items {
		req.Messages = append(req.Messages, models.Message{
			Role:    item.Get("role").String(),
			Content: messageContent(item.Get("content")),
		})
	}

	root.ForEach(func(key, value gjson.Result) bool {
		if !models.IsReservedKey(key.String()) {
			req.Params = append(req.Params, models.Param{
				Key:   key.String(),
				Value: json.RawMessage(value.Raw),
			})
		}
		return true
	})

	return req, true
}

// messageContent supports string and array-of-text content formats.
func messageContent(raw gjson.Result) string {
	if raw.IsArray() {
		var builder strings.Builder
		for _, segment := range raw.Array() {
			if segment.Get("type").String() == "text" {
				builder.WriteString(segment.Get("text").String())
			}
		}
		return builder.String()
	}
	return raw.String()
}

// routePrefix is a model-name prefix that acts as a routing signal and is
// never part of the upstream model id.
type routePrefix struct {
	prefix string
	apply  func(*cohere.ChatRequest)
}

// routePrefixes is checked in order against the requested model name,
// case-sensitively; at most one prefix applies.
var routePrefixes = []routePrefix{
	{
		prefix: "net-",
		apply: func(r *cohere.ChatRequest) {
			r.Connectors = []cohere.Connector{cohere.WebSearchConnector}
		},
	},
	{
		prefix: "tools-",
		apply: func(r *cohere.ChatRequest) {
			r.Tools = cohere.BuiltinTools()
		},
	},
}

// ToCohere maps a parsed chat request to the upstream dialect. modelOverride
// (the model query parameter) and defaultModel choose the upstream model
// unless the requested model names one from the upstream family.
func ToCohere(req models.ChatRequest, modelOverride, defaultModel string) cohere.ChatRequest {
	out := cohere.ChatRequest{
		Model:  firstNonEmpty(modelOverride, defaultModel, DefaultModel),
		Stream: req.Stream,
		Params: req.Params,
	}

	history := req.History()
	out.ChatHistory = make([]cohere.ChatMessage, 0, len(history))
	for _, msg := range history {
		out.ChatHistory = append(out.ChatHistory, cohere.ChatMessage{
			Role:    upstreamRole(msg.Role),
			Message: msg.Content,
		})
	}

	if last, ok := req.Last(); ok {
		out.Message = last.Content
	}

	applyModelRoute(req.Model, &out)
	return out
}

func applyModelRoute(requested string, out *cohere.ChatRequest) {
	name := requested
	for _, route := range routePrefixes {
		if strings.HasPrefix(requested, route.prefix) {
			route.apply(out)
			name = strings.TrimPrefix(requested, route.prefix)
			break
		}
	}

	if strings.HasPrefix(name, upstreamModelFamily) {
		out.Model = name
	}
}

func upstreamRole(role string) string {
	if role == "assistant" {
		return cohere.RoleChatbot
	}
	return strings.ToUpper(role)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
