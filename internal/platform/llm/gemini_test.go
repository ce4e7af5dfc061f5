package llm

import (
	"testing"
)

func TestUsesAdjustableTemperature(t *testing.T) {
	cases := map[string]bool{
		"gemini-2.5-flash":         true,
		"gemini-2.5-pro":           true,
		"o1-preview":               false,
		"O1-Mini":                  false,
		"o3-mini":                  false,
		"gemini-2.0-flash-thinking": false,
	}
	for model, want := range cases {
		if got := usesAdjustableTemperature(model); got != want {
			t.Errorf("usesAdjustableTemperature(%q) = %v, want %v", model, got, want)
		}
	}
}
