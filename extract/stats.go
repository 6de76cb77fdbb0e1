package extract

import (
	"strconv"
	"strings"
)

// ParseCount parses a best-effort engagement count. Handles thousands
// separators and K/M magnitude suffixes ("1,234", "1.2K", "3M"). Returns 0
// for anything unparseable; counts are a display nicety, not data we fail
// a post over.
func ParseCount(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.ReplaceAll(raw, " ", "")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(raw, "K"), strings.HasSuffix(raw, "k"):
		multiplier = 1_000
		raw = raw[:len(raw)-1]
	case strings.HasSuffix(raw, "M"), strings.HasSuffix(raw, "m"):
		multiplier = 1_000_000
		raw = raw[:len(raw)-1]
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return 0
	}

	return int(value * multiplier)
}

// Stat label keywords, matched case-insensitively against icon class names
// and aria labels in the stats row
var repostKeywords = []string{"retweet", "repost", "quote"}
var favoriteKeywords = []string{"heart", "like", "favorite", "favourite"}

func matchesKeyword(label string, keywords []string) bool {
	label = strings.ToLower(label)
	for _, kw := range keywords {
		if strings.Contains(label, kw) {
			return true
		}
	}
	return false
}
