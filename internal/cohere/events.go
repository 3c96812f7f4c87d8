package cohere

import (
	"encoding/json"
	"fmt"
)

// Event types emitted by the upstream chat stream.
const (
	EventStreamStart             = "stream-start"
	EventTextGeneration          = "text-generation"
	EventSearchQueriesGeneration = "search-queries-generation"
	EventSearchResults           = "search-results"
	EventCitationGeneration      = "citation-generation"
	EventToolCallsGeneration     = "tool-calls-generation"
	EventStreamEnd               = "stream-end"
)

// Envelope holds the fields every upstream event may carry.
type Envelope struct {
	Type     string
	Text     string
	Finished bool
}

// Header returns the shared event fields.
func (e Envelope) Header() Envelope {
	return e
}

// Event is one decoded frame of the upstream stream. The concrete type is
// one of StreamStart, TextGeneration, SearchResults, ToolCallsGeneration,
// StreamEnd or Other.
type Event interface {
	Header() Envelope
	sealed()
}

// StreamStart opens a generation.
type StreamStart struct {
	Envelope
	GenerationID string
}

// TextGeneration carries a slice of generated text.
type TextGeneration struct {
	Envelope
}

// SearchResults reports the results of a connector or tool search.
type SearchResults struct {
	Envelope
	// QueryText is the first result's search_query.text. For tool-routed
	// chats it holds a JSON encoded ToolInvocation.
	QueryText string
}

// ToolCallsGeneration announces tool calls that are also reported through
// SearchResults.
type ToolCallsGeneration struct {
	Envelope
}

// StreamEnd closes a generation.
type StreamEnd struct {
	Envelope
	FinishReason string
}

// Other is any event the bridge has no dedicated handling for, including
// frames without an event_type.
type Other struct {
	Envelope
}

func (StreamStart) sealed()         {}
func (TextGeneration) sealed()      {}
func (SearchResults) sealed()       {}
func (ToolCallsGeneration) sealed() {}
func (StreamEnd) sealed()           {}
func (Other) sealed()               {}

type wireEvent struct {
	EventType     string `json:"event_type"`
	Text          string `json:"text"`
	IsFinished    bool   `json:"is_finished"`
	GenerationID  string `json:"generation_id"`
	FinishReason  string `json:"finish_reason"`
	SearchResults []struct {
		SearchQuery *struct {
			Text string `json:"text"`
		} `json:"search_query"`
	} `json:"search_results"`
}

// DecodeEvent parses a single frame into its event variant.
func DecodeEvent(frame []byte) (Event, error) {
	var raw wireEvent
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	env := Envelope{
		Type:     raw.EventType,
		Text:     raw.Text,
		Finished: raw.IsFinished,
	}

	switch raw.EventType {
	case EventStreamStart:
		return StreamStart{Envelope: env, GenerationID: raw.GenerationID}, nil
	case EventTextGeneration:
		return TextGeneration{Envelope: env}, nil
	case EventSearchResults:
		evt := SearchResults{Envelope: env}
		if len(raw.SearchResults) > 0 && raw.SearchResults[0].SearchQuery != nil {
			evt.QueryText = raw.SearchResults[0].SearchQuery.Text
		}
		return evt, nil
	case EventToolCallsGeneration:
		return ToolCallsGeneration{Envelope: env}, nil
	case EventStreamEnd:
		return StreamEnd{Envelope: env, FinishReason: raw.FinishReason}, nil
	default:
		return Other{Envelope: env}, nil
	}
}
