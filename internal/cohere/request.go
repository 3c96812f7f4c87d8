package cohere

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"cohere-bridge/internal/models"
)

// Chat history roles understood by the upstream.
const (
	RoleUser    = "USER"
	RoleChatbot = "CHATBOT"
	RoleSystem  = "SYSTEM"
)

// Tool names the upstream can invoke on its own.
const (
	ToolInternetSearch    = "internet_search"
	ToolCalculator        = "calculator"
	ToolPythonInterpreter = "python_interpreter"
)

// WebSearchConnector grounds a chat on live web results.
var WebSearchConnector = Connector{ID: "web-search"}

// ChatMessage is one prior turn in the upstream chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Connector attaches an upstream retrieval source to a chat.
type Connector struct {
	ID string `json:"id"`
}

// Tool names a built-in upstream tool.
type Tool struct {
	Name string `json:"name"`
}

// BuiltinTools returns the tool set offered to tool-routed models.
func BuiltinTools() []Tool {
	return []Tool{
		{Name: ToolInternetSearch},
		{Name: ToolCalculator},
		{Name: ToolPythonInterpreter},
	}
}

// ChatRequest models the upstream /chat payload.
type ChatRequest struct {
	ChatHistory []ChatMessage
	Message     string
	Model       string
	Stream      bool
	Connectors  []Connector
	Tools       []Tool
	// Params are forwarded after the known fields, in order, as raw JSON.
	Params []models.Param
}

// MarshalJSON renders the known fields first and then splices each
// pass-through parameter in verbatim. A parameter never replaces a field the
// request already derived.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	type wire struct {
		ChatHistory []ChatMessage `json:"chat_history"`
		Message     string        `json:"message"`
		Stream      bool          `json:"stream"`
		Model       string        `json:"model"`
		Connectors  []Connector   `json:"connectors,omitempty"`
		Tools       []Tool        `json:"tools,omitempty"`
	}

	history := r.ChatHistory
	if history == nil {
		history = []ChatMessage{}
	}

	out, err := json.Marshal(wire{
		ChatHistory: history,
		Message:     r.Message,
		Stream:      r.Stream,
		Model:       r.Model,
		Connectors:  r.Connectors,
		Tools:       r.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	// sjson cannot address the empty key, so its last value is appended by hand.
	var emptyKeyValue json.RawMessage
	for _, param := range r.Params {
		if r.derives(param.Key) || len(param.Value) == 0 {
			continue
		}
		if param.Key == "" {
			emptyKeyValue = param.Value
			continue
		}
		out, err = sjson.SetRawBytes(out, escapePathKey(param.Key), param.Value)
		if err != nil {
			return nil, fmt.Errorf("set parameter %q: %w", param.Key, err)
		}
	}
	if emptyKeyValue != nil {
		out = appendEmptyKey(out, emptyKeyValue)
	}
	return out, nil
}

// appendEmptyKey adds "":value as the last member of the object in out.
func appendEmptyKey(out []byte, value json.RawMessage) []byte {
	obj := bytes.TrimRight(out, " \t\r\n")
	obj = obj[:len(obj)-1]
	spliced := make([]byte, 0, len(obj)+len(value)+5)
	spliced = append(spliced, obj...)
	spliced = append(spliced, `,"":`...)
	spliced = append(spliced, value...)
	return append(spliced, '}')
}

func (r ChatRequest) derives(key string) bool {
	switch key {
	case "chat_history", "message", "stream", "model":
		return true
	case "connectors":
		return len(r.Connectors) > 0
	case "tools":
		return len(r.Tools) > 0
	}
	return false
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
)

// escapePathKey turns an arbitrary object key into a single sjson path segment.
func escapePathKey(key string) string {
	return pathEscaper.Replace(key)
}
