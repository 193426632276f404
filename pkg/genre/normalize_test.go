package genre

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase passthrough", "indie rock", "indie rock"},
		{"uppercase folded", "Synthwave", "synthwave"},
		{"surrounding whitespace", "  trip hop  ", "trip hop"},
		{"bracket junk", `["dream pop"]`, "dream pop"},
		{"single quotes", "'post-punk'", "post-punk"},
		{"backticks", "`shoegaze`", "shoegaze"},
		{"inner whitespace collapsed", "lo  fi   beats", "lo fi beats"},
		{"diacritics folded", "Électro Swing", "electro swing"},
		{"empty", "", ""},
		{"only junk", `[" "]`, ""},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.input)
			if result != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeAll(t *testing.T) {
	testCases := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "mixed junk and duplicates",
			input:    []string{"Indie Rock", `["indie rock"]`, "", "Dream Pop"},
			expected: []string{"indie rock", "dream pop"},
		},
		{
			name:     "order preserved",
			input:    []string{"b", "a", "c"},
			expected: []string{"b", "a", "c"},
		},
		{
			name:     "all empty drops to empty slice",
			input:    []string{"", "  ", `[]`},
			expected: []string{},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeAll(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("NormalizeAll(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
