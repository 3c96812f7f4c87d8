package cohere

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolInvocation(t *testing.T) {
	inv, err := ParseToolInvocation(`{"tool_name":"calculator","parameters":{"expression":"2+2"}}`)
	require.NoError(t, err)

	assert.Equal(t, ToolCalculator, inv.Name)
	assert.Equal(t, "2+2", inv.Param("expression"))
	assert.Empty(t, inv.Param("missing"))
}

func TestParseToolInvocationMalformed(t *testing.T) {
	_, err := ParseToolInvocation(`what is 2+2`)
	assert.ErrorIs(t, err, ErrInvalidToolInvocation)
}

func TestToolInvocationParamNonString(t *testing.T) {
	inv, err := ParseToolInvocation(`{"tool_name":"x","parameters":{"n":42,"obj":{"a":[1,2]},"dotted.key":"v"}}`)
	require.NoError(t, err)

	assert.Equal(t, "42", inv.Param("n"))
	assert.JSONEq(t, `{"a":[1,2]}`, inv.Param("obj"))
	assert.Equal(t, "v", inv.Param("dotted.key"))
}

func TestToolInvocationWithoutParameters(t *testing.T) {
	inv, err := ParseToolInvocation(`{"tool_name":"python_interpreter"}`)
	require.NoError(t, err)
	assert.Empty(t, inv.Param("code"))
}
