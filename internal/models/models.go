package models

import (
	"encoding/json"
	"strings"
)

// Message represents a single conversational message in the downstream schema.
type Message struct {
	Role    string
	Content string
}

// Param is a top-level request key forwarded to the upstream untouched.
type Param struct {
	Key   string
	Value json.RawMessage
}

// ChatRequest is the parsed form of an inbound chat completion request.
type ChatRequest struct {
	Model    string
	Messages []Message
	Stream   bool
	Params   []Param
}

// Last returns the final message of the conversation.
func (r ChatRequest) Last() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// History returns every message preceding the final one.
func (r ChatRequest) History() []Message {
	if len(r.Messages) < 2 {
		return nil
	}
	return r.Messages[:len(r.Messages)-1]
}

var reservedKeyPrefixes = []string{"model", "messages", "stream"}

// IsReservedKey reports whether a top-level request key is owned by the
// translator and must not be forwarded verbatim. Matching is a
// case-insensitive prefix match, so "stream_options" and "Model" are reserved.
func IsReservedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, prefix := range reservedKeyPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
