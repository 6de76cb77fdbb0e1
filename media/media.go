// Package media holds the pure URL heuristics used to classify attachment
// links scraped from mirror pages and to translate between the mirror CDN
// dialect (percent-encoded proxy paths) and the canonical upstream CDN
// dialect. Everything in here is a total function; unrecognized input is
// classified as unknown rather than rejected.
package media

import (
	"net/url"
	"path"
	"strings"

	"mirrorfeed/models"
)

// Kind is the classifier's verdict for a URL. Finer grained than the
// attachment kind stored on a post; thumbnails and live streams collapse
// into video/image at the attachment level.
type Kind string

const (
	KindImage     Kind = "image"
	KindVideo     Kind = "video"
	KindGif       Kind = "gif"
	KindAudio     Kind = "audio"
	KindThumbnail Kind = "thumbnail"
	KindLive      Kind = "live"
	KindUnknown   Kind = "unknown"
)

// MediaInfo describes what a URL points at
type MediaInfo struct {
	Kind          Kind
	IsAnimated    bool
	HasAudio      bool
	IsLiveStream  bool
	ThumbnailURL  string
	FileExtension string
	FormatLabel   string
}

const canonicalImageHost = "pbs.twimg.com"
const canonicalVideoHost = "video.twimg.com"

var videoThumbMarkers = []string{
	"ext_tw_video_thumb",
	"amplify_video_thumb",
	"tweet_video_thumb",
	"/pu/img/",
}

var liveMarkers = []string{
	"/live_video/",
	"dynamic_playlist",
	"periscope",
}

var gifMarkers = []string{
	"tweet_video",
	"/tweet_video/",
}

var videoMarkers = []string{
	canonicalVideoHost,
	"/amplify_video/",
	"/ext_tw_video/",
	"/pu/vid/",
	"/video/",
}

var audioMarkers = []string{
	"/audio/",
	"audio_space",
}

var imageMarkers = []string{
	canonicalImageHost + "/media",
	"/media/",
	"/pic/",
	"profile_images",
	"profile_banners",
	"card_img",
}

// Classify inspects a media URL by shape and reports what it points at.
// First match wins: video thumbnail, live stream, gif, video, audio, image,
// unknown. Never fails.
func Classify(rawURL string) MediaInfo {
	lower := strings.ToLower(rawURL)
	ext := urlExtension(lower)

	switch {
	case matchesAny(lower, videoThumbMarkers):
		return MediaInfo{Kind: KindThumbnail, ThumbnailURL: rawURL, FileExtension: ext, FormatLabel: "thumb"}
	case matchesAny(lower, liveMarkers) || ext == "m3u8" && strings.Contains(lower, "live"):
		return MediaInfo{Kind: KindLive, IsLiveStream: true, HasAudio: true, FileExtension: ext, FormatLabel: "live"}
	case matchesAny(lower, gifMarkers) || ext == "gif":
		return MediaInfo{Kind: KindGif, IsAnimated: true, FileExtension: ext, FormatLabel: "gif"}
	case matchesAny(lower, videoMarkers) || ext == "mp4" || ext == "m3u8" || ext == "ts":
		return MediaInfo{Kind: KindVideo, IsAnimated: true, HasAudio: true, FileExtension: ext, FormatLabel: "video"}
	case matchesAny(lower, audioMarkers) || ext == "mp3" || ext == "m4a" || ext == "aac" || ext == "ogg":
		return MediaInfo{Kind: KindAudio, HasAudio: true, FileExtension: ext, FormatLabel: "audio"}
	case matchesAny(lower, imageMarkers) || ext == "jpg" || ext == "jpeg" || ext == "png" || ext == "webp":
		return MediaInfo{Kind: KindImage, FileExtension: ext, FormatLabel: "image"}
	default:
		return MediaInfo{Kind: KindUnknown, FileExtension: ext}
	}
}

// AttachmentKind maps a classifier verdict to the coarser attachment kind
func (k Kind) AttachmentKind() models.MediaKind {
	switch k {
	case KindImage, KindThumbnail:
		return models.MediaImage
	case KindVideo, KindLive:
		return models.MediaVideo
	case KindGif:
		return models.MediaGif
	case KindAudio:
		return models.MediaAudio
	default:
		return models.MediaUnknown
	}
}

// MirrorMediaToCanonical translates a mirror proxy URL like
// /pic/media%2Fabc.jpg%3Fname%3Dsmall into the canonical CDN form. Returns
// ok=false when the URL does not carry a recognizable proxy path; callers
// must fall back to the original URL.
func MirrorMediaToCanonical(rawURL string) (string, bool) {
	idx := strings.Index(rawURL, "/pic/")
	if idx < 0 {
		return "", false
	}
	encoded := rawURL[idx+len("/pic/"):]
	// Some mirrors double up the orig marker before the encoded path
	encoded = strings.TrimPrefix(encoded, "orig/")

	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return "", false
	}

	switch {
	case strings.HasPrefix(decoded, "media/"),
		strings.HasPrefix(decoded, "ext_tw_video_thumb/"),
		strings.HasPrefix(decoded, "amplify_video_thumb/"),
		strings.HasPrefix(decoded, "tweet_video_thumb/"),
		strings.HasPrefix(decoded, "tweet_video/"),
		strings.HasPrefix(decoded, "profile_images/"),
		strings.HasPrefix(decoded, "profile_banners/"),
		strings.HasPrefix(decoded, "card_img/"):
		return "https://" + canonicalImageHost + "/" + decoded, true
	case strings.HasPrefix(decoded, canonicalVideoHost+"/"):
		return "https://" + decoded, true
	case strings.HasPrefix(decoded, canonicalImageHost+"/"):
		return "https://" + decoded, true
	default:
		return "", false
	}
}

// CanonicalMediaToMirror translates a canonical CDN URL into the proxy form
// served by the given mirror. Returns ok=false when the host is not a known
// CDN host; callers must fall back to the original URL.
func CanonicalMediaToMirror(rawURL string, mirrorBaseURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	base := strings.TrimSuffix(mirrorBaseURL, "/")

	switch parsed.Host {
	case canonicalImageHost:
		inner := strings.TrimPrefix(parsed.Path, "/")
		if parsed.RawQuery != "" {
			inner += "?" + parsed.RawQuery
		}
		return base + "/pic/" + url.PathEscape(inner), true
	case canonicalVideoHost:
		inner := parsed.Host + parsed.Path
		if parsed.RawQuery != "" {
			inner += "?" + parsed.RawQuery
		}
		return base + "/pic/" + url.PathEscape(inner), true
	default:
		return "", false
	}
}

// OptimizedURL rewrites CDN sizing query parameters for images and
// thumbnails. Other kinds are returned unchanged; the CDN only honours
// name/format on still images.
func OptimizedURL(rawURL string, size string, format string) string {
	info := Classify(rawURL)
	if info.Kind != KindImage && info.Kind != KindThumbnail {
		return rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := parsed.Query()
	if size != "" {
		query.Set("name", size)
	}
	if format != "" {
		query.Set("format", format)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func matchesAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// urlExtension returns the lowercase file extension of the URL path with no
// leading dot, ignoring any query string
func urlExtension(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	ext := strings.TrimPrefix(path.Ext(trimmed), ".")
	return ext
}
