package extract_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mirrorfeed/extract"
)

func TestParseDate(t *testing.T) {
	fallback := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		raw      string
		expected time.Time
	}{
		{
			name:     "rfc1123z",
			raw:      "Mon, 03 Jun 2024 10:30:00 +0000",
			expected: time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "rfc1123",
			raw:      "Mon, 03 Jun 2024 10:30:00 GMT",
			expected: time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "dotted html title",
			raw:      "Jun 3, 2024 · 10:30 AM UTC",
			expected: time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "rfc3339",
			raw:      "2024-06-03T10:30:00Z",
			expected: time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "surrounding whitespace",
			raw:      "  2024-06-03T10:30:00Z  ",
			expected: time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "empty falls back",
			raw:      "",
			expected: fallback,
		},
		{
			name:     "garbage falls back",
			raw:      "not a date at all",
			expected: fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extract.ParseDate(tt.raw, fallback)
			assert.True(t, tt.expected.Equal(got), "expected %v, got %v", tt.expected, got)
		})
	}
}
