package cohere

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrInvalidToolInvocation indicates an embedded tool descriptor could not be parsed.
var ErrInvalidToolInvocation = errors.New("invalid tool invocation")

// ToolInvocation is the tool call embedded in a search result's query text.
type ToolInvocation struct {
	Name       string          `json:"tool_name"`
	Parameters json.RawMessage `json:"parameters"`
}

// ParseToolInvocation decodes the JSON descriptor carried in search_query.text.
func ParseToolInvocation(text string) (ToolInvocation, error) {
	var inv ToolInvocation
	if err := json.Unmarshal([]byte(text), &inv); err != nil {
		return ToolInvocation{}, fmt.Errorf("%w: %v", ErrInvalidToolInvocation, err)
	}
	return inv, nil
}

// Param returns a single parameter as text. Strings are returned unquoted,
// other values as their raw JSON, and a missing parameter as "".
func (t ToolInvocation) Param(name string) string {
	if len(t.Parameters) == 0 {
		return ""
	}
	return gjson.GetBytes(t.Parameters, escapePathKey(name)).String()
}
