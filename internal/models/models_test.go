package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsReservedKey(t *testing.T) {
	cases := map[string]bool{
		"model":          true,
		"Model":          true,
		"models":         true,
		"messages":       true,
		"MESSAGES":       true,
		"stream":         true,
		"stream_options": true,
		"streaming":      true,
		"temperature":    false,
		"top_p":          false,
		"max_tokens":     false,
		"my_model":       false,
		"":               false,
	}
	for key, want := range cases {
		assert.Equal(t, want, IsReservedKey(key), "key %q", key)
	}
}

func TestChatRequestLastAndHistory(t *testing.T) {
	req := ChatRequest{Messages: []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "bye"},
	}}

	last, ok := req.Last()
	assert.True(t, ok)
	assert.Equal(t, "bye", last.Content)
	assert.Len(t, req.History(), 3)
	assert.Equal(t, "be brief", req.History()[0].Content)

	_, ok = ChatRequest{}.Last()
	assert.False(t, ok)
	assert.Nil(t, ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}}.History())
}
