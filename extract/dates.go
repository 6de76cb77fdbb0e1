package extract

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	log "github.com/sirupsen/logrus"
)

// Known timestamp layouts across mirror variants, tried in order. RSS feeds
// use RFC1123 flavours, HTML pages a dotted local format that changed at
// least twice upstream.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Jan 2, 2006 · 3:04 PM UTC",
	"Jan 2, 2006 · 3:04 PM MST",
	"2/1/2006, 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseDate parses a source timestamp, trying the known layouts first and a
// loose parse second. Falls back to the given time on total failure; the
// extractor must never fail a post over an unparseable date.
func ParseDate(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}

	if t, err := dateparse.ParseAny(raw); err == nil {
		return t.UTC()
	}

	log.WithFields(log.Fields{
		"value": raw,
	}).Debug("Unparseable timestamp, falling back to fetch time")

	return fallback
}
