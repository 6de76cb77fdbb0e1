// Package cache is the top-level orchestration between the unreliable
// network and the consumer: it decides whether to serve from cache, merge
// with a fresh fetch, or fall back to stale cache when every mirror is
// down, and it owns the persistence policy for fetched posts.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mirrorfeed/models"
)

// RowStore is what the coordinator needs from the local cache store
type RowStore interface {
	GetPostsSince(ctx context.Context, handle string, since time.Time, limit int) ([]models.Post, error)
	GetLatestFetchTime(ctx context.Context, handle string) (time.Time, error)
	StorePosts(ctx context.Context, posts []models.Post, permanent bool) (int, error)
	MarkPinned(ctx context.Context, ids []string) error
	DeleteNonPinned(ctx context.Context) (int64, error)
}

// MirrorFetcher is the failover entry point the coordinator delegates
// network work to
type MirrorFetcher interface {
	FetchFromAnyMirror(ctx context.Context, handle string, since time.Time, maxPosts int) ([]models.Post, error)
	FetchFromAnyMirrorForMany(ctx context.Context, handles []string, since time.Time, maxPostsPerHandle int) map[string]models.HandleResult
}

const freshnessMemoSize = 1024

// Options configures a Coordinator
type Options struct {
	// MaxCacheAge is the default staleness bound when a call passes none
	MaxCacheAge time.Duration
	// StorePermanently selects the fingerprint-aware upsert write path
	// over blind insert-or-replace
	StorePermanently bool
	// NetworkStore is the optional network-backed store; nil is fine
	NetworkStore NetworkStore
	// Events receives PostStoredEvent / CacheClearedEvent values; nil
	// disables emission. Sends are non-blocking.
	Events chan<- interface{}
}

// Coordinator serves posts from a staleness-aware cache backed by the
// mirror failover fetcher
type Coordinator struct {
	store    RowStore
	failover MirrorFetcher
	netStore NetworkStore
	events   chan<- interface{}

	mu          sync.RWMutex
	maxCacheAge time.Duration
	permanent   bool

	// Per-handle last successful fetch, memoized so freshness checks skip
	// a store read on the hot path
	freshness *expirable.LRU[string, time.Time]
}

func NewCoordinator(store RowStore, failover MirrorFetcher, opts Options) *Coordinator {
	if opts.MaxCacheAge <= 0 {
		opts.MaxCacheAge = 15 * time.Minute
	}
	return &Coordinator{
		store:       store,
		failover:    failover,
		netStore:    opts.NetworkStore,
		events:      opts.Events,
		maxCacheAge: opts.MaxCacheAge,
		permanent:   opts.StorePermanently,
		freshness:   expirable.NewLRU[string, time.Time](freshnessMemoSize, nil, 24*time.Hour),
	}
}

// SetCacheExpiry changes the default staleness bound
func (c *Coordinator) SetCacheExpiry(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.maxCacheAge = d
	}
}

func (c *Coordinator) cacheAge(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxCacheAge
}

// GetPosts is the primary single-handle entry point. Depending on the
// cache mode it serves straight from cache, refreshes over the network and
// merges, or degrades to stale cache data when every mirror fails. Cache
// only mode never touches the network, and returns success even when the
// cache is empty.
func (c *Coordinator) GetPosts(ctx context.Context, handle string, since time.Time, mode models.CacheMode, maxResults int, maxCacheAge time.Duration) ([]models.Post, error) {
	handle = strings.ToLower(strings.TrimPrefix(handle, "@"))
	maxAge := c.cacheAge(maxCacheAge)

	var accumulated []models.Post

	if mode == models.NetworkStoreFirst && c.netStore != nil && c.netStore.CanRead() {
		posts, err := c.netStore.Read(ctx, handle, since, false, maxResults)
		if err != nil {
			log.WithFields(log.Fields{
				"handle": handle,
				"error":  err,
			}).Warn("Network store read failed, continuing with local paths")
		} else {
			accumulated = posts
			if last, err := c.netStore.LastUpdate(ctx, handle); err == nil && time.Since(last) <= maxAge {
				cacheHits.Inc()
				return truncate(posts, maxResults), nil
			}
		}
	}

	if mode == models.LocalCacheEnabled || mode == models.CacheOnly {
		cached, err := c.store.GetPostsSince(ctx, handle, since, maxResults)
		if err != nil {
			log.WithFields(log.Fields{
				"handle": handle,
				"error":  err,
			}).Warn("Cache read failed, continuing without cached posts")
		} else {
			accumulated = mergeById(accumulated, cached)
		}

		if mode == models.CacheOnly {
			// Cache-only never triggers a network fetch, empty included
			cacheHits.Inc()
			return truncate(accumulated, maxResults), nil
		}

		if len(accumulated) > 0 && c.isFresh(ctx, handle, maxAge) {
			cacheHits.Inc()
			return truncate(accumulated, maxResults), nil
		}
	}

	cacheMisses.Inc()

	fetched, err := c.failover.FetchFromAnyMirror(ctx, handle, since, maxResults)
	if err != nil {
		if len(accumulated) > 0 {
			// Stale data beats no data, as long as the caller is told
			degradedReturns.Inc()
			log.WithFields(log.Fields{
				"handle": handle,
				"cached": len(accumulated),
				"error":  err,
			}).Warn("Network fetch failed, serving stale cache")
			return truncate(accumulated, maxResults), nil
		}
		return nil, err
	}

	merged := mergeById(fetched, accumulated)
	models.SortNewestFirst(merged)
	merged = truncate(merged, maxResults)

	c.persist(ctx, handle, merged)

	return merged, nil
}

// GetMultiplePosts runs GetPosts per handle concurrently. One handle's
// failure never affects another's result.
func (c *Coordinator) GetMultiplePosts(ctx context.Context, handles []string, since time.Time, maxPostsPerHandle int, mode models.CacheMode) map[string]models.HandleResult {
	results := make(map[string]models.HandleResult, len(handles))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, handle := range handles {
		handle := handle
		g.Go(func() error {
			posts, err := c.GetPosts(gctx, handle, since, mode, maxPostsPerHandle, 0)
			mu.Lock()
			results[handle] = models.HandleResult{Posts: posts, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ObservePosts emits individual posts as they become available instead of
// one batch list. With a readable network store plugged in its Observe
// stream is used directly; otherwise cached posts are emitted first and a
// refresh follows with only the changed or new rows.
func (c *Coordinator) ObservePosts(ctx context.Context, handle string, since time.Time, mode models.CacheMode) (<-chan models.Post, error) {
	if c.netStore != nil && c.netStore.CanRead() {
		return c.netStore.Observe(ctx, handle, since, mode == models.CacheOnly)
	}

	ch := make(chan models.Post)
	go func() {
		defer close(ch)

		known := map[string]models.Post{}
		cached, err := c.GetPosts(ctx, handle, since, models.CacheOnly, 0, 0)
		if err == nil {
			for _, post := range cached {
				known[post.Id] = post
				if !emit(ctx, ch, post) {
					return
				}
			}
		}

		if mode == models.CacheOnly {
			return
		}

		refreshed, err := c.GetPosts(ctx, handle, since, mode, 0, 0)
		if err != nil {
			log.WithFields(log.Fields{
				"handle": handle,
				"error":  err,
			}).Warn("Observe refresh failed")
			return
		}

		updated := lo.KeyBy(refreshed, func(p models.Post) string { return p.Id })
		changed := models.Diff(known, updated)
		models.SortNewestFirst(changed)
		for _, post := range changed {
			if !emit(ctx, ch, post) {
				return
			}
		}
	}()

	return ch, nil
}

// RefreshAll is the idempotent fetch-and-persist-now operation invoked by
// external schedulers. Fetches every handle concurrently via failover and
// persists the successes.
func (c *Coordinator) RefreshAll(ctx context.Context, handles []string, maxPostsPerHandle int) map[string]models.HandleResult {
	results := c.failover.FetchFromAnyMirrorForMany(ctx, handles, time.Time{}, maxPostsPerHandle)

	for handle, result := range results {
		if result.Err != nil {
			continue
		}
		c.persist(ctx, handle, result.Posts)
	}

	return results
}

// MarkPinned flags posts to survive cache sweeps
func (c *Coordinator) MarkPinned(ctx context.Context, ids []string) error {
	return c.store.MarkPinned(ctx, ids)
}

// ClearNonPinnedCache deletes all non-pinned cache rows. Explicit
// maintenance only; nothing in the serving path ever calls this.
func (c *Coordinator) ClearNonPinnedCache(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeleteNonPinned(ctx)
	if err != nil {
		return 0, err
	}
	c.emitEvent(models.CacheClearedEvent{Deleted: deleted})
	return deleted, nil
}

func (c *Coordinator) isFresh(ctx context.Context, handle string, maxAge time.Duration) bool {
	if last, ok := c.freshness.Get(handle); ok {
		return time.Since(last) <= maxAge
	}
	last, err := c.store.GetLatestFetchTime(ctx, handle)
	if err != nil || last.IsZero() {
		return false
	}
	c.freshness.Add(handle, last)
	return time.Since(last) <= maxAge
}

func (c *Coordinator) persist(ctx context.Context, handle string, posts []models.Post) {
	if len(posts) == 0 {
		return
	}

	c.mu.RLock()
	permanent := c.permanent
	c.mu.RUnlock()

	stored, err := c.store.StorePosts(ctx, posts, permanent)
	if err != nil {
		log.WithFields(log.Fields{
			"handle": handle,
			"error":  err,
		}).Error("Failed to persist fetched posts")
	} else {
		postsPersisted.Add(float64(stored))
	}

	c.freshness.Add(handle, time.Now())

	if c.netStore != nil && c.netStore.CanWrite() {
		if err := c.netStore.Write(ctx, handle, posts); err != nil {
			log.WithFields(log.Fields{
				"handle": handle,
				"error":  err,
			}).Warn("Network store write failed")
		}
	}

	for _, post := range posts {
		c.emitEvent(models.PostStoredEvent{Post: post})
	}
}

func (c *Coordinator) emitEvent(event interface{}) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- event:
	default:
		log.Debug("Event channel full, dropping event")
	}
}

// mergeById combines two batches; on duplicate ids the first batch wins
func mergeById(primary []models.Post, secondary []models.Post) []models.Post {
	return lo.UniqBy(append(primary, secondary...), func(p models.Post) string {
		return p.Id
	})
}

func truncate(posts []models.Post, maxResults int) []models.Post {
	if maxResults > 0 && len(posts) > maxResults {
		return posts[:maxResults]
	}
	return posts
}

func emit(ctx context.Context, ch chan<- models.Post, post models.Post) bool {
	select {
	case ch <- post:
		return true
	case <-ctx.Done():
		return false
	}
}
