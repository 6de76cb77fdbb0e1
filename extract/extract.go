// Package extract normalizes raw mirror documents, RSS items or HTML
// timeline nodes, into the canonical post model. Parsing is heuristic and
// best-effort: a single unrecognizable item is skipped or padded with
// fallbacks, never allowed to fail a whole batch.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Mirror permalinks end in /status/<digits>, optionally with a fragment
var statusIdPattern = regexp.MustCompile(`/status/(\d+)$`)

// Reply titles follow the "R to @handle:" convention in feed items
var replyTitlePattern = regexp.MustCompile(`^R to @([A-Za-z0-9_]+):`)

// Phrase marking a post as part of an authored thread
const threadContinuationPhrase = "show this thread"

// IdFromPermalink extracts the stable post id from a permalink. When the
// permalink does not match the /status/<digits> convention a random id is
// generated instead; such ids are not stable across refetches, which is a
// documented caveat, so the miss is logged as a quality signal.
func IdFromPermalink(permalink string) string {
	trimmed := permalink
	if i := strings.IndexAny(trimmed, "#?"); i >= 0 {
		trimmed = trimmed[:i]
	}

	if m := statusIdPattern.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}

	id := uuid.NewString()
	log.WithFields(log.Fields{
		"permalink": permalink,
		"fallback":  id,
	}).Warn("Permalink did not yield a stable post id")

	return id
}

// ResolveURL resolves a possibly relative href against the mirror base URL
func ResolveURL(baseURL string, href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
