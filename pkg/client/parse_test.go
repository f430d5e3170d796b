package client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"block comment", `{"a":/* one */1}`, `{"a":1}`},
		{"line comment", "{\n// note\n\"a\":1\n}", "{\n\n\"a\":1\n}"},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"surrounding prose", `Sure! {"a":1} Hope that helps.`, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeModelJSON(tt.in))
		})
	}
}

func TestParseAnalysisResult(t *testing.T) {
	raw := "```json\n" + `{
  "primary": {
    "label": "dog",
    "confidence": 0.9,
    "box": {"x": 0.1, "y": 0.2, "w": 0.3, "h": 0.4},
    "cx": 0.25,
    "cy": 0.4,
  },
  "description": "a dog on grass",
  "tags": ["dog", "grass"]
}` + "\n```"

	result, err := ParseAnalysisResult(raw)
	require.NoError(t, err)
	assert.Equal(t, "dog", result.Primary.Label)
	assert.InDelta(t, 0.9, result.Primary.Confidence, 1e-9)
	assert.InDelta(t, 0.3, result.Primary.Box.W, 1e-9)
	assert.Equal(t, []string{"dog", "grass"}, result.Tags)
}

func TestParseAnalysisResult_Errors(t *testing.T) {
	_, err := ParseAnalysisResult("I can see a dog.")
	assert.True(t, errors.Is(err, ErrNoJSON))

	_, err = ParseAnalysisResult(`{"primary": {"label": }}`)
	assert.Error(t, err)
}
