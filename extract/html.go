package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"mirrorfeed/media"
	"mirrorfeed/models"
)

// Structural class names on mirror timeline pages. These have been stable
// across mirror versions for years but are still conventions, not a schema.
const (
	classTimelineItem = "timeline-item"
	classShowMore     = "show-more"
	classUnavailable  = "unavailable"
)

// FromHTMLNode normalizes one timeline node into a post. Partial: returns
// ok=false for nodes that are structurally not posts (ads, placeholders,
// "more replies" markers, nodes missing a body or permalink) so one junk
// node never aborts the page.
func FromHTMLNode(sel *goquery.Selection, baseURL string, avatarURL string, authorHandle string, fetchedAt time.Time) (models.Post, bool) {
	if sel.HasClass(classShowMore) || sel.HasClass(classUnavailable) {
		return models.Post{}, false
	}
	if sel.Find(".more-replies").Length() > 0 {
		return models.Post{}, false
	}

	body := sel.Find(".tweet-body")
	if body.Length() == 0 {
		return models.Post{}, false
	}

	href, ok := sel.Find("a.tweet-link").Attr("href")
	if !ok || href == "" {
		log.WithFields(log.Fields{
			"base": baseURL,
		}).Debug("Skipping timeline node without permalink")
		return models.Post{}, false
	}
	permalink := ResolveURL(baseURL, href)

	handle := normalizeHandle(authorHandle)
	if username := strings.TrimSpace(body.Find(".username").First().Text()); username != "" {
		handle = normalizeHandle(username)
	}

	post := models.Post{
		Id:              IdFromPermalink(permalink),
		AuthorHandle:    handle,
		Permalink:       permalink,
		AuthorAvatarURL: avatarURL,
		FetchedAt:       fetchedAt,
	}

	if src, ok := sel.Find(".tweet-avatar img, img.avatar").First().Attr("src"); ok {
		post.AuthorAvatarURL = ResolveURL(baseURL, src)
	}

	content := body.Find(".tweet-content")
	if content.Length() > 0 {
		html, err := content.Html()
		if err == nil {
			post.RichText = html
		}
		post = post.WithText(strings.TrimSpace(content.Text()))
	} else {
		post = post.WithText("")
	}

	title, _ := body.Find(".tweet-date a").First().Attr("title")
	post.PostedAt = ParseDate(title, fetchedAt)

	// Reply target from the replying-to line; a self-reply counts as a
	// thread continuation
	if replyTo := body.Find(".replying-to a").First(); replyTo.Length() > 0 {
		post.IsReply = true
		post.ReplyToHandle = normalizeHandle(replyTo.Text())
		if post.ReplyToHandle == post.AuthorHandle {
			post.IsInThread = true
		}
	}

	// A "show thread" marker sits on the thread's visible starter; nodes
	// drawn with the thread connector line are continuations
	if sel.Find("a.show-thread").Length() > 0 {
		post.IsThreadRoot = true
		post.IsInThread = true
	}
	if sel.HasClass("thread") || sel.HasClass("thread-line") {
		post.IsInThread = true
	}

	post.RepostCount, post.FavoriteCount = statsFromNode(body)
	post.Attachments = attachmentsFromNode(sel, baseURL)

	return post, true
}

// statsFromNode matches stat entries by icon keyword rather than position;
// mirrors reorder the stats row between versions
func statsFromNode(body *goquery.Selection) (reposts int, favorites int) {
	body.Find(".tweet-stats .tweet-stat").Each(func(_ int, s *goquery.Selection) {
		label, _ := s.Find("span[class*=icon]").First().Attr("class")
		if label == "" {
			label, _ = s.Attr("title")
		}
		count := ParseCount(s.Text())

		switch {
		case matchesKeyword(label, repostKeywords):
			reposts = count
		case matchesKeyword(label, favoriteKeywords):
			favorites = count
		}
	})
	return reposts, favorites
}

func attachmentsFromNode(sel *goquery.Selection, baseURL string) []models.MediaAttachment {
	var attachments []models.MediaAttachment
	seen := map[string]bool{}

	add := func(rawURL string, alt string, thumb string) {
		if rawURL == "" || seen[rawURL] {
			return
		}
		seen[rawURL] = true

		resolved := ResolveURL(baseURL, rawURL)
		info := media.Classify(resolved)

		attachment := models.MediaAttachment{
			URL:     resolved,
			Kind:    info.Kind.AttachmentKind(),
			AltText: alt,
		}
		if thumb != "" {
			attachment.ThumbnailURL = ResolveURL(baseURL, thumb)
		} else if info.ThumbnailURL != "" {
			attachment.ThumbnailURL = info.ThumbnailURL
		}
		attachments = append(attachments, attachment)
	}

	sel.Find(".attachments img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		add(src, alt, "")
	})
	sel.Find(".attachments video").Each(func(_ int, s *goquery.Selection) {
		poster, _ := s.Attr("poster")
		if src, ok := s.Attr("data-url"); ok && src != "" {
			add(src, "", poster)
			return
		}
		src, _ := s.Find("source").First().Attr("src")
		add(src, "", poster)
	})
	sel.Find(".attachments .gif video, .attachments .gif source").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src, "", "")
	})

	return attachments
}
