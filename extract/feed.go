package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"mirrorfeed/media"
	"mirrorfeed/models"
)

// FromFeedItem normalizes one RSS item into a post. Total: any item with a
// link yields a post, with fallbacks filling whatever the item lacks.
//
// Feed items carry thread and reply signals in two conventions: a title
// prefixed "R to @handle:" marks a reply, and the continuation phrase or an
// embedded signal element inside the description marks thread membership.
// A reply whose target is the item's own author is treated as a thread
// continuation even without an explicit marker; self-replies are how
// authors extend their own threads on the source platform.
func FromFeedItem(item *gofeed.Item, authorHandle string, fetchedAt time.Time) models.Post {
	handle := normalizeHandle(authorHandle)
	permalink := item.Link

	post := models.Post{
		Id:           IdFromPermalink(permalink),
		AuthorHandle: handle,
		Permalink:    permalink,
		RichText:     item.Description,
		FetchedAt:    fetchedAt,
	}

	if item.PublishedParsed != nil {
		post.PostedAt = item.PublishedParsed.UTC()
	} else {
		post.PostedAt = ParseDate(item.Published, fetchedAt)
	}

	plain := item.Description
	inThread := false
	isRoot := false

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.Description))
	if err == nil {
		post.Attachments = attachmentsFromMarkup(doc)

		if doc.Find(".show-thread, .thread-indicator").Length() > 0 {
			inThread = true
		}
		if doc.Find(".thread-start").Length() > 0 {
			isRoot = true
		}
		if doc.Find(".replying-to").Length() > 0 {
			post.IsReply = true
		}

		plain = strings.TrimSpace(doc.Text())
	}

	if strings.Contains(strings.ToLower(item.Description), threadContinuationPhrase) ||
		strings.Contains(strings.ToLower(item.Title), threadContinuationPhrase) {
		inThread = true
	}

	if m := replyTitlePattern.FindStringSubmatch(item.Title); m != nil {
		post.IsReply = true
		post.ReplyToHandle = normalizeHandle(m[1])
	}

	// Self-reply bridges a conversational reply chain into a thread
	if post.IsReply && post.ReplyToHandle == handle {
		inThread = true
	}

	if isRoot {
		inThread = true
	}

	post.IsInThread = inThread
	post.IsThreadRoot = isRoot
	post = post.WithText(plain)

	return post
}

// attachmentsFromMarkup pulls media links out of embedded description markup
func attachmentsFromMarkup(doc *goquery.Document) []models.MediaAttachment {
	var attachments []models.MediaAttachment
	seen := map[string]bool{}

	add := func(rawURL string, alt string) {
		if rawURL == "" || seen[rawURL] {
			return
		}
		seen[rawURL] = true

		info := media.Classify(rawURL)
		attachments = append(attachments, models.MediaAttachment{
			URL:          rawURL,
			Kind:         info.Kind.AttachmentKind(),
			AltText:      alt,
			ThumbnailURL: info.ThumbnailURL,
		})
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		add(src, alt)
	})
	doc.Find("video").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src, "")
		}
		if poster, ok := s.Attr("poster"); ok {
			add(poster, "")
		}
	})
	doc.Find("video source, audio source").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src, "")
	})

	return attachments
}
