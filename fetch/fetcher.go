// Package fetch executes paginated post fetches against unreliable mirror
// servers, failing over across them until one produces a usable result.
// Pagination within one handle is strictly sequential; the cursor for page
// N+1 only exists once page N has been parsed.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/corpix/uarand"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"mirrorfeed/extract"
	"mirrorfeed/models"
	"mirrorfeed/thread"
)

const (
	defaultTimeout = 30 * time.Second
	defaultPageCap = 25
	maxBodyBytes   = 10 << 20
)

// Config holds fetcher tuning knobs
type Config struct {
	// Timeout applies per HTTP request
	Timeout time.Duration
	// PageCap bounds pages attempted per fetch regardless of post count
	PageCap int
	// UserAgent overrides the rotating per-session user agent when set
	UserAgent string
}

// Fetcher executes a paginated fetch against one mirror at a time
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

func NewFetcher(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = defaultPageCap
	}
	return &Fetcher{cfg: cfg, transport: http.DefaultTransport}
}

// session carries per-fetch state: one cookie jar, one user agent and one
// challenge token shared by every page request of the fetch
type session struct {
	client    *http.Client
	mirror    models.MirrorServer
	userAgent string
	token     string
}

// FetchUserPosts pages through a mirror's timeline for the handle until a
// stop condition fires: a post older than since is reached (that boundary
// post is included), maxPosts is hit, the page yields no next cursor or no
// posts at all, or the page cap runs out. The returned posts have been
// through thread tagging; callers never see raw extractor output.
func (f *Fetcher) FetchUserPosts(ctx context.Context, mirror models.MirrorServer, handle string, since time.Time, maxPosts int) ([]models.Post, error) {
	started := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(started).Seconds())
	}()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	userAgent := f.cfg.UserAgent
	if userAgent == "" {
		userAgent = uarand.GetRandom()
	}

	s := &session{
		client: &http.Client{
			Transport: f.transport,
			Jar:       jar,
			Timeout:   f.cfg.Timeout,
		},
		mirror:    mirror,
		userAgent: userAgent,
	}

	pageURL := firstPageURL(mirror, handle)
	mode := string(mirror.Mode)

	var accumulated []models.Post

	for page := 0; page < f.cfg.PageCap; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			pageErrors.WithLabelValues(mirror.BaseURL, mode).Inc()
			return nil, err
		}
		pagesFetched.WithLabelValues(mirror.BaseURL, mode).Inc()

		var batch []models.Post
		var next string
		fetchedAt := time.Now().UTC()

		switch mirror.Mode {
		case models.ModeRSS:
			batch, next = parseFeedPage(body, mirror, handle, fetchedAt)
		default:
			batch, next = parseTimelinePage(body, pageURL, handle, fetchedAt)
		}

		// Zero extracted posts with no transport error means the timeline
		// is exhausted, not that something broke
		if len(batch) == 0 {
			break
		}
		postsExtracted.WithLabelValues(mirror.BaseURL, mode).Add(float64(len(batch)))

		stop := false
		for _, post := range batch {
			accumulated = append(accumulated, post)
			if post.PostedAt.Before(since) {
				// Boundary post included, then stop
				stop = true
				break
			}
			if maxPosts > 0 && len(accumulated) >= maxPosts {
				stop = true
				break
			}
		}

		if stop || next == "" {
			break
		}
		pageURL = next
	}

	log.WithFields(log.Fields{
		"mirror": mirror.BaseURL,
		"handle": handle,
		"posts":  len(accumulated),
	}).Debug("Fetch complete")

	return thread.AssignThreadIDs(accumulated), nil
}

// fetchPage GETs one page, transparently negotiating the anti-bot
// challenge in HTML mode. A token recovered from one challenge is reused
// for every later page of the same fetch.
func (s *session) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return backoff.Permanent(&TransportError{URL: pageURL, Err: err})
		}
		req.Header.Set("User-Agent", s.userAgent)
		req.Header.Set("Accept", "text/html,application/rss+xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
		if s.token != "" {
			req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: s.token})
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return backoff.Permanent(&TransportError{URL: pageURL, Err: err})
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return backoff.Permanent(&TransportError{URL: pageURL, Err: err})
		}

		if resp.StatusCode == http.StatusOK {
			body = data
			return nil
		}

		if s.mirror.Mode == models.ModeHTML && isChallenge(resp.StatusCode) {
			s.token = tokenFromResponse(resp, data)
			challengeRetries.WithLabelValues(s.mirror.BaseURL).Inc()
			log.WithFields(log.Fields{
				"mirror": s.mirror.BaseURL,
				"status": resp.StatusCode,
			}).Info("Challenge response, retrying with session token")
			return &TransportError{URL: pageURL, StatusCode: resp.StatusCode}
		}

		return backoff.Permanent(&TransportError{URL: pageURL, StatusCode: resp.StatusCode})
	}

	err := backoff.Retry(operation, backoff.WithContext(challengeBackOff(), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func firstPageURL(mirror models.MirrorServer, handle string) string {
	base := strings.TrimSuffix(mirror.BaseURL, "/")
	if mirror.Mode == models.ModeRSS {
		return fmt.Sprintf("%s/%s/rss", base, url.PathEscape(handle))
	}
	return fmt.Sprintf("%s/%s", base, url.PathEscape(handle))
}

// parseFeedPage extracts posts from one RSS page. The next-page cursor is
// the oldest item's id, requested back as a max_position bound.
func parseFeedPage(body []byte, mirror models.MirrorServer, handle string, fetchedAt time.Time) ([]models.Post, string) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		log.WithFields(log.Fields{
			"mirror": mirror.BaseURL,
			"handle": handle,
		}).Warn("Unparseable feed page, treating as end of data")
		return nil, ""
	}

	avatarURL := ""
	if feed.Image != nil {
		avatarURL = feed.Image.URL
	}

	var posts []models.Post
	for _, item := range feed.Items {
		if item == nil || item.Link == "" {
			continue
		}
		post := extract.FromFeedItem(item, handle, fetchedAt)
		if post.AuthorAvatarURL == "" {
			post.AuthorAvatarURL = avatarURL
		}
		posts = append(posts, post)
	}

	if len(posts) == 0 {
		return nil, ""
	}

	base := strings.TrimSuffix(mirror.BaseURL, "/")
	next := fmt.Sprintf("%s/%s/rss?max_position=%s",
		base, url.PathEscape(handle), url.QueryEscape(posts[len(posts)-1].Id))
	return posts, next
}

// parseTimelinePage extracts posts from one HTML timeline page. Nodes the
// extractor rejects (ads, placeholders, more-replies markers) are skipped
// without failing the page. The next-page cursor comes from the trailing
// show-more link.
func parseTimelinePage(body []byte, pageURL string, handle string, fetchedAt time.Time) ([]models.Post, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		log.WithFields(log.Fields{
			"page": pageURL,
		}).Warn("Unparseable timeline page, treating as end of data")
		return nil, ""
	}

	avatarURL := ""
	if src, ok := doc.Find(".profile-card-avatar img, .profile-card img.avatar").First().Attr("src"); ok {
		avatarURL = extract.ResolveURL(pageURL, src)
	}

	var posts []models.Post
	doc.Find(".timeline-item").Each(func(_ int, sel *goquery.Selection) {
		post, ok := extract.FromHTMLNode(sel, pageURL, avatarURL, handle, fetchedAt)
		if !ok {
			return
		}
		posts = append(posts, post)
	})

	next := ""
	if href, ok := doc.Find(".timeline .show-more a, .show-more a").Last().Attr("href"); ok {
		next = extract.ResolveURL(pageURL, href)
	}

	return posts, next
}
