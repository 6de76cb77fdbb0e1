package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mirrorfeed/extract"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected int
	}{
		{
			name:     "empty",
			raw:      "",
			expected: 0,
		},
		{
			name:     "plain number",
			raw:      "42",
			expected: 42,
		},
		{
			name:     "thousands separator",
			raw:      "1,234",
			expected: 1234,
		},
		{
			name:     "kilo suffix",
			raw:      "1.2K",
			expected: 1200,
		},
		{
			name:     "lowercase kilo",
			raw:      "3k",
			expected: 3000,
		},
		{
			name:     "mega suffix",
			raw:      "3M",
			expected: 3000000,
		},
		{
			name:     "whitespace padded",
			raw:      "  512  ",
			expected: 512,
		},
		{
			name:     "garbage",
			raw:      "lots",
			expected: 0,
		},
		{
			name:     "negative clamped",
			raw:      "-5",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extract.ParseCount(tt.raw))
		})
	}
}
