package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// MediaKind classifies a media attachment by content type
type MediaKind string

const (
	MediaImage   MediaKind = "image"
	MediaVideo   MediaKind = "video"
	MediaGif     MediaKind = "gif"
	MediaAudio   MediaKind = "audio"
	MediaUnknown MediaKind = "unknown"
)

// MediaAttachment is owned exclusively by its Post and copied on transforms
type MediaAttachment struct {
	URL          string    `json:"url"`
	Kind         MediaKind `json:"kind"`
	AltText      string    `json:"altText,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
}

// Post model with key fields extracted from a mirror document.
// Identity is the Id field; two posts with the same Id are the same post.
type Post struct {
	Id                 string            `json:"id"`
	AuthorHandle       string            `json:"authorHandle"`
	PlainText          string            `json:"plainText"`
	RichText           string            `json:"richText,omitempty"`
	PostedAt           time.Time         `json:"postedAt"`
	FetchedAt          time.Time         `json:"fetchedAt"`
	Permalink          string            `json:"permalink"`
	AuthorAvatarURL    string            `json:"authorAvatarUrl,omitempty"`
	IsThreadRoot       bool              `json:"isThreadRoot"`
	IsInThread         bool              `json:"isInThread"`
	ThreadId           string            `json:"threadId,omitempty"`
	IsReply            bool              `json:"isReply"`
	ReplyToHandle      string            `json:"replyToHandle,omitempty"`
	ReplyToPostId      string            `json:"replyToPostId,omitempty"`
	Attachments        []MediaAttachment `json:"attachments,omitempty"`
	RepostCount        int               `json:"repostCount"`
	FavoriteCount      int               `json:"favoriteCount"`
	IsPinned           bool              `json:"isPinned"`
	ContentFingerprint string            `json:"contentFingerprint"`
}

// Fingerprint hashes a post's plain text. Deterministic, so a refetch of an
// unchanged post produces the same value and the cache row is left alone.
func Fingerprint(plainText string) string {
	sum := sha256.Sum256([]byte(plainText))
	return hex.EncodeToString(sum[:])
}

// WithText returns a copy with PlainText replaced and the fingerprint
// recomputed. The fingerprint must always be a pure function of PlainText.
func (p Post) WithText(plain string) Post {
	p.PlainText = plain
	p.ContentFingerprint = Fingerprint(plain)
	return p
}

// MirrorMode selects the extraction path for a mirror server
type MirrorMode string

const (
	ModeRSS  MirrorMode = "rss"
	ModeHTML MirrorMode = "html"
)

// MirrorServer is one of several interchangeable public front-ends serving
// the same underlying content. Ordered by preference in configuration.
type MirrorServer struct {
	BaseURL string     `json:"baseUrl" toml:"base_url"`
	Mode    MirrorMode `json:"mode" toml:"mode"`
}

// CacheMode controls how GetPosts balances cache reads against the network
type CacheMode int

const (
	// CacheDisabled always goes to the network
	CacheDisabled CacheMode = iota
	// LocalCacheEnabled serves fresh cache data, refreshing when stale
	LocalCacheEnabled
	// CacheOnly never triggers a network fetch
	CacheOnly
	// NetworkStoreFirst consults the pluggable network-backed store before
	// the local row store
	NetworkStoreFirst
)

// HandleResult is the per-handle outcome of a batch fetch. One handle's
// failure never affects another's result.
type HandleResult struct {
	Posts []Post
	Err   error
}

// PostStoredEvent fired when a post is persisted to the cache
type PostStoredEvent struct {
	Post Post
}

// CacheClearedEvent fired after a non-pinned cache sweep
type CacheClearedEvent struct {
	Deleted int64
}

// Diff compares two keyed snapshots and returns only changed or new posts,
// using the content fingerprint for the change test. Used by the streaming
// path to avoid re-emitting rows the consumer has already seen.
func Diff(old map[string]Post, updated map[string]Post) []Post {
	var changed []Post
	for id, post := range updated {
		prev, ok := old[id]
		if !ok || prev.ContentFingerprint != post.ContentFingerprint {
			changed = append(changed, post)
		}
	}
	return changed
}

// SortNewestFirst orders posts by PostedAt descending in place
func SortNewestFirst(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].PostedAt.After(posts[j].PostedAt)
	})
}
