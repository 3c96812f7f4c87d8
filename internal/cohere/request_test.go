package cohere

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cohere-bridge/internal/models"
)

func TestChatRequestMarshalKnownFields(t *testing.T) {
	req := ChatRequest{
		ChatHistory: []ChatMessage{{Role: RoleSystem, Message: "be brief"}},
		Message:     "hi",
		Model:       "command-r",
		Stream:      true,
		Connectors:  []Connector{WebSearchConnector},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"chat_history":[{"role":"SYSTEM","message":"be brief"}],
		"message":"hi",
		"stream":true,
		"model":"command-r",
		"connectors":[{"id":"web-search"}]
	}`, string(data))
}

func TestChatRequestMarshalEmptyHistory(t *testing.T) {
	data, err := json.Marshal(ChatRequest{Message: "hi", Model: "command-r"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"chat_history":[],"message":"hi","stream":false,"model":"command-r"}`, string(data))
}

func TestChatRequestMarshalPassThroughParams(t *testing.T) {
	req := ChatRequest{
		Message: "hi",
		Model:   "command-r",
		Params: []models.Param{
			{Key: "temperature", Value: json.RawMessage(`0.3`)},
			{Key: "max_tokens", Value: json.RawMessage(`12345678901234567890`)},
			{Key: "response.format", Value: json.RawMessage(`{"type":"text"}`)},
			{Key: "preamble", Value: json.RawMessage(`"be nice"`)},
		},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"max_tokens":12345678901234567890`)
	assert.JSONEq(t, `{
		"chat_history":[],
		"message":"hi",
		"stream":false,
		"model":"command-r",
		"temperature":0.3,
		"max_tokens":12345678901234567890,
		"response.format":{"type":"text"},
		"preamble":"be nice"
	}`, string(data))
}

func TestChatRequestParamsNeverReplaceDerivedFields(t *testing.T) {
	req := ChatRequest{
		Message: "real",
		Model:   "command-r",
		Tools:   BuiltinTools(),
		Params: []models.Param{
			{Key: "message", Value: json.RawMessage(`"spoofed"`)},
			{Key: "chat_history", Value: json.RawMessage(`[]`)},
			{Key: "tools", Value: json.RawMessage(`[{"type":"function"}]`)},
			{Key: "connectors", Value: json.RawMessage(`[{"id":"custom"}]`)},
		},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "real", decoded["message"])
	assert.Len(t, decoded["tools"], 3)
	// connectors were not derived, so the caller's value passes through.
	assert.Equal(t, []any{map[string]any{"id": "custom"}}, decoded["connectors"])
}

func TestBuiltinTools(t *testing.T) {
	assert.Equal(t, []Tool{
		{Name: ToolInternetSearch},
		{Name: ToolCalculator},
		{Name: ToolPythonInterpreter},
	}, BuiltinTools())
}

func TestChatRequestMarshalEmptyKeyParam(t *testing.T) {
	req := ChatRequest{
		Message: "hi",
		Model:   "command-r",
		Params: []models.Param{
			{Key: "", Value: json.RawMessage(`0`)},
			{Key: `a"b`, Value: json.RawMessage(`2`)},
			{Key: "", Value: json.RawMessage(`{"x":[1]}`)},
		},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"chat_history":[],
		"message":"hi",
		"stream":false,
		"model":"command-r",
		"a\"b":2,
		"":{"x":[1]}
	}`, string(data))
}
