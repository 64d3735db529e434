package repository

import (
	"context"
	"sync"
	"time"

	"stayfinder/internal/models"
)

type memoryEntry struct {
	listing   models.Listing
	expiresAt time.Time
}

// MemoryListingCache is the in-process fallback for RedisListingCache.
type MemoryListingCache struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryListingCache(ttl time.Duration) *MemoryListingCache {
	return &MemoryListingCache{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryListingCache) GetListing(_ context.Context, id int64) (*models.Listing, error) {
	val, ok := r.entries.Load(id)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.entries.Delete(id)
		return nil, nil
	}
	l := entry.listing
	return &l, nil
}

func (r *MemoryListingCache) SetListing(_ context.Context, listing *models.Listing) error {
	r.entries.Store(listing.ID, &memoryEntry{
		listing:   *listing,
		expiresAt: r.now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryListingCache) Invalidate(_ context.Context, id int64) error {
	r.entries.Delete(id)
	return nil
}
