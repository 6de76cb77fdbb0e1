package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorfeed/cache"
	"mirrorfeed/models"
)

type stubStore struct {
	mu          sync.Mutex
	posts       []models.Post
	latestFetch time.Time
	readErr     error

	readHandles []string
	stored      [][]models.Post
	permanent   []bool
	pinned      [][]string
	deleted     int64
}

func (s *stubStore) GetPostsSince(ctx context.Context, handle string, since time.Time, limit int) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readHandles = append(s.readHandles, handle)
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.posts, nil
}

func (s *stubStore) GetLatestFetchTime(ctx context.Context, handle string) (time.Time, error) {
	return s.latestFetch, nil
}

func (s *stubStore) StorePosts(ctx context.Context, posts []models.Post, permanent bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, posts)
	s.permanent = append(s.permanent, permanent)
	return len(posts), nil
}

func (s *stubStore) MarkPinned(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = append(s.pinned, ids)
	return nil
}

func (s *stubStore) DeleteNonPinned(ctx context.Context) (int64, error) {
	return s.deleted, nil
}

type stubNetwork struct {
	mu     sync.Mutex
	posts  []models.Post
	err    error
	calls  int
	forbid bool
}

func (s *stubNetwork) FetchFromAnyMirror(ctx context.Context, handle string, since time.Time, maxPosts int) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.forbid {
		panic("network fetch in a cache-only path")
	}
	return s.posts, s.err
}

func (s *stubNetwork) FetchFromAnyMirrorForMany(ctx context.Context, handles []string, since time.Time, maxPostsPerHandle int) map[string]models.HandleResult {
	results := make(map[string]models.HandleResult, len(handles))
	for _, handle := range handles {
		posts, err := s.FetchFromAnyMirror(ctx, handle, since, maxPostsPerHandle)
		results[handle] = models.HandleResult{Posts: posts, Err: err}
	}
	return results
}

func at(minutes int) time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func TestGetPostsCacheOnlyNeverFetches(t *testing.T) {
	store := &stubStore{posts: []models.Post{{Id: "1", PostedAt: at(0)}}}
	network := &stubNetwork{forbid: true}
	c := cache.NewCoordinator(store, network, cache.Options{})

	posts, err := c.GetPosts(context.Background(), "h", time.Time{}, models.CacheOnly, 0, 0)

	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Zero(t, network.calls)
}

func TestGetPostsCacheOnlyEmptyIsStillSuccess(t *testing.T) {
	store := &stubStore{}
	network := &stubNetwork{forbid: true}
	c := cache.NewCoordinator(store, network, cache.Options{})

	posts, err := c.GetPosts(context.Background(), "h", time.Time{}, models.CacheOnly, 0, 0)

	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestGetPostsFreshCacheSkipsNetwork(t *testing.T) {
	store := &stubStore{
		posts:       []models.Post{{Id: "1", PostedAt: at(0)}},
		latestFetch: time.Now(),
	}
	network := &stubNetwork{forbid: true}
	c := cache.NewCoordinator(store, network, cache.Options{MaxCacheAge: time.Hour})

	posts, err := c.GetPosts(context.Background(), "h", time.Time{}, models.LocalCacheEnabled, 0, 0)

	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Zero(t, network.calls)
}

func TestGetPostsStaleCacheRefreshesAndMerges(t *testing.T) {
	cachedOld := models.Post{Id: "1", PostedAt: at(0)}.WithText("original")
	fetchedNew := models.Post{Id: "2", PostedAt: at(10)}.WithText("newer")
	fetchedEdit := models.Post{Id: "1", PostedAt: at(0)}.WithText("edited")

	store := &stubStore{
		posts:       []models.Post{cachedOld},
		latestFetch: time.Now().Add(-2 * time.Hour),
	}
	network := &stubNetwork{posts: []models.Post{fetchedNew, fetchedEdit}}
	c := cache.NewCoordinator(store, network, cache.Options{MaxCacheAge: time.Minute})

	posts, err := c.GetPosts(context.Background(), "h", time.Time{}, models.LocalCacheEnabled, 0, 0)

	require.NoError(t, err)
	require.Len(t, posts, 2)
	// Newest first, and the fetched version of a duplicate id wins
	assert.Equal(t, "2", posts[0].Id)
	assert.Equal(t, "edited", posts[1].PlainText)

	// Merged result was persisted
	require.Len(t, store.stored, 1)
	assert.Len(t, store.stored[0], 2)
}

func TestGetPostsDegradesToStaleCacheOnNetworkFailure(t *testing.T) {
	store := &stubStore{
		posts:       []models.Post{{Id: "1", PostedAt: at(0)}},
		latestFetch: time.Now().Add(-2 * time.Hour),
	}
	network := &stubNetwork{err: errors.New("every mirror down")}
	c := cache.NewCoordinator(store, network, cache.Options{MaxCacheAge: time.Minute})

	posts, err := c.GetPosts(context.Background(), "h", time.Time{}, models.LocalCacheEnabled, 0, 0)

	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Empty(t, store.stored)
}

func TestGetPostsFailsWhenNetworkFailsAndCacheEmpty(t *testing.T) {
	store := &stubStore{}
	network := &stubNetwork{err: errors.New("every mirror down")}
	c := cache.NewCoordinator(store, network, cache.Options{})

	_, err := c.GetPosts(context.Background(), "h", time.Time{}, models.LocalCacheEnabled, 0, 0)

	assert.Error(t, err)
}

func TestGetPostsNormalizesHandle(t *testing.T) {
	store := &stubStore{posts: []models.Post{{Id: "1"}}}
	c := cache.NewCoordinator(store, &stubNetwork{forbid: true}, cache.Options{})

	_, err := c.GetPosts(context.Background(), "@SomeHandle", time.Time{}, models.CacheOnly, 0, 0)

	require.NoError(t, err)
	require.Len(t, store.readHandles, 1)
	assert.Equal(t, "somehandle", store.readHandles[0])
}

func TestGetPostsTruncatesToMaxResults(t *testing.T) {
	store := &stubStore{posts: []models.Post{
		{Id: "3", PostedAt: at(30)},
		{Id: "2", PostedAt: at(20)},
		{Id: "1", PostedAt: at(10)},
	}}
	c := cache.NewCoordinator(store, &stubNetwork{forbid: true}, cache.Options{})

	posts, err := c.GetPosts(context.Background(), "h", time.Time{}, models.CacheOnly, 2, 0)

	require.NoError(t, err)
	assert.Len(t, posts, 2)
	assert.Equal(t, "3", posts[0].Id)
}

func TestGetPostsEmitsStoredEvents(t *testing.T) {
	events := make(chan interface{}, 16)
	store := &stubStore{}
	network := &stubNetwork{posts: []models.Post{{Id: "1", PostedAt: at(0)}}}
	c := cache.NewCoordinator(store, network, cache.Options{Events: events})

	_, err := c.GetPosts(context.Background(), "h", time.Time{}, models.CacheDisabled, 0, 0)
	require.NoError(t, err)

	select {
	case event := <-events:
		stored, ok := event.(models.PostStoredEvent)
		require.True(t, ok)
		assert.Equal(t, "1", stored.Post.Id)
	default:
		t.Fatal("expected a stored-post event")
	}
}

func TestGetMultiplePostsIsolatesFailures(t *testing.T) {
	store := &stubStore{}
	network := &stubNetwork{err: errors.New("boom")}
	c := cache.NewCoordinator(store, network, cache.Options{})

	results := c.GetMultiplePosts(context.Background(), []string{"a", "b"}, time.Time{}, 10, models.CacheDisabled)

	require.Len(t, results, 2)
	assert.Error(t, results["a"].Err)
	assert.Error(t, results["b"].Err)
}

func TestRefreshAllPersistsSuccesses(t *testing.T) {
	store := &stubStore{}
	network := &stubNetwork{posts: []models.Post{{Id: "1", PostedAt: at(0)}}}
	c := cache.NewCoordinator(store, network, cache.Options{StorePermanently: true})

	results := c.RefreshAll(context.Background(), []string{"a", "b"}, 10)

	require.Len(t, results, 2)
	assert.Len(t, store.stored, 2)
	// Permanent flag carried through to the write path
	assert.Equal(t, []bool{true, true}, store.permanent)
}

func TestClearNonPinnedCacheEmitsEvent(t *testing.T) {
	events := make(chan interface{}, 1)
	store := &stubStore{deleted: 7}
	c := cache.NewCoordinator(store, &stubNetwork{}, cache.Options{Events: events})

	deleted, err := c.ClearNonPinnedCache(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)

	event := <-events
	cleared, ok := event.(models.CacheClearedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(7), cleared.Deleted)
}

func TestObservePostsEmitsCachedThenChanged(t *testing.T) {
	cached := models.Post{Id: "1", PostedAt: at(0)}.WithText("original")
	edited := models.Post{Id: "1", PostedAt: at(0)}.WithText("edited")
	added := models.Post{Id: "2", PostedAt: at(10)}.WithText("new")

	store := &stubStore{
		posts:       []models.Post{cached},
		latestFetch: time.Now().Add(-2 * time.Hour),
	}
	network := &stubNetwork{posts: []models.Post{added, edited}}
	c := cache.NewCoordinator(store, network, cache.Options{MaxCacheAge: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := c.ObservePosts(ctx, "h", time.Time{}, models.LocalCacheEnabled)
	require.NoError(t, err)

	var got []models.Post
	for post := range ch {
		got = append(got, post)
	}

	// Cached snapshot first, then only the changed and new posts
	require.Len(t, got, 3)
	assert.Equal(t, "original", got[0].PlainText)
	ids := []string{got[1].Id, got[2].Id}
	assert.ElementsMatch(t, []string{"1", "2"}, ids)
}
