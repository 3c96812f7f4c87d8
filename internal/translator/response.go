package translator

import (
	"encoding/json"
	"fmt"
	"io"
)

// FromCohereResponse builds the non-streamed completion from an upstream
// chat response body. A body that cannot be decoded is not an error: its
// decode error becomes the completion content.
func FromCohereResponse(body io.Reader, model string, created int64) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      CompletionID,
		Object:  objectChatCompletion,
		Created: created,
		Model:   model,
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: ChatMessage{
					Role:    roleAssistant,
					Content: responseContent(body),
				},
				FinishReason: finishReasonStop,
			},
		},
	}
}

func responseContent(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("read upstream response: %v", err)
	}

	var payload struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err.Error()
	}

	if payload.Text != "" {
		return payload.Text
	}
	return payload.Error
}
