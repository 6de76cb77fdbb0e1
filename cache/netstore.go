package cache

import (
	"context"
	"time"

	"mirrorfeed/models"
)

// NetworkStore is the optional network-backed store collaborator. The
// coordinator must work correctly whether one is plugged in or not; every
// use is guarded by a nil check plus the capability flags.
type NetworkStore interface {
	CanRead() bool
	CanWrite() bool

	Write(ctx context.Context, handle string, posts []models.Post) error
	Read(ctx context.Context, handle string, since time.Time, cacheOnly bool, maxResults int) ([]models.Post, error)
	LastUpdate(ctx context.Context, handle string) (time.Time, error)
	Observe(ctx context.Context, handle string, since time.Time, cacheOnly bool) (<-chan models.Post, error)
	Oldest(ctx context.Context, handle string, cacheOnly bool) (*models.Post, error)
	Latest(ctx context.Context, handle string, cacheOnly bool) (*models.Post, error)
}
