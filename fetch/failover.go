package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mirrorfeed/models"
)

// PostFetcher is the per-mirror fetch the failover loop delegates to
type PostFetcher interface {
	FetchUserPosts(ctx context.Context, mirror models.MirrorServer, handle string, since time.Time, maxPosts int) ([]models.Post, error)
}

// Failover walks a prioritized mirror list and returns the first successful
// non-empty result. A rotating start index spreads load across mirrors
// between calls; the rotation is a heuristic, not a correctness invariant,
// so the atomic increment only guards against lost updates corrupting the
// index.
type Failover struct {
	fetcher PostFetcher
	mirrors []models.MirrorServer
	cursor  atomic.Uint64
	step    uint64
}

// NewFailover builds a coordinator over the static mirror list. Step
// controls how far the start index advances per call; values below 1 are
// treated as 1.
func NewFailover(fetcher PostFetcher, mirrors []models.MirrorServer, step int) *Failover {
	if step < 1 {
		step = 1
	}
	return &Failover{
		fetcher: fetcher,
		mirrors: mirrors,
		step:    uint64(step),
	}
}

// FetchFromAnyMirror iterates the full mirror list exactly once, starting
// from the rotated index and wrapping around. Transport failures and empty
// results skip to the next mirror; cancellation of the overall operation
// propagates immediately and is never downgraded to a skip.
func (f *Failover) FetchFromAnyMirror(ctx context.Context, handle string, since time.Time, maxPosts int) ([]models.Post, error) {
	n := len(f.mirrors)
	if n == 0 {
		return nil, &AllMirrorsFailedError{Handle: handle}
	}

	start := int(f.cursor.Add(f.step) % uint64(n))

	for i := 0; i < n; i++ {
		mirror := f.mirrors[(start+i)%n]
		failoverAttempts.WithLabelValues(mirror.BaseURL).Inc()

		posts, err := f.fetcher.FetchUserPosts(ctx, mirror, handle, since, maxPosts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			log.WithFields(log.Fields{
				"mirror": mirror.BaseURL,
				"handle": handle,
				"error":  err,
			}).Warn("Mirror fetch failed, trying next mirror")
			continue
		}
		if len(posts) == 0 {
			log.WithFields(log.Fields{
				"mirror": mirror.BaseURL,
				"handle": handle,
			}).Debug("Mirror returned no posts, trying next mirror")
			continue
		}

		return posts, nil
	}

	failoverExhausted.Inc()
	return nil, &AllMirrorsFailedError{Handle: handle, Mirrors: n}
}

// FetchFromAnyMirrorForMany runs one independent failover sequence per
// handle concurrently and joins all before returning. Cancelling the parent
// context cancels every in-flight fetch, but a handle's ordinary failure is
// captured as its per-handle result and never affects the others.
func (f *Failover) FetchFromAnyMirrorForMany(ctx context.Context, handles []string, since time.Time, maxPostsPerHandle int) map[string]models.HandleResult {
	results := make(map[string]models.HandleResult, len(handles))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, handle := range handles {
		handle := handle
		g.Go(func() error {
			posts, err := f.FetchFromAnyMirror(gctx, handle, since, maxPostsPerHandle)
			mu.Lock()
			results[handle] = models.HandleResult{Posts: posts, Err: err}
			mu.Unlock()
			// Per-handle failures are results, not group failures
			return nil
		})
	}
	_ = g.Wait()

	return results
}
