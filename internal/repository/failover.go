package repository

import (
	"context"
	"sync/atomic"
	"time"

	"stayfinder/internal/domain"
	"stayfinder/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverListingCache serves from primary until it errors, then from fallback,
// probing primary again once per recoveryInterval.
type FailoverListingCache struct {
	primary   domain.ListingCache
	fallback  domain.ListingCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverListingCache(primary, fallback domain.ListingCache, logger *zerolog.Logger) *FailoverListingCache {
	return &FailoverListingCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverListingCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary listing cache failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverListingCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().UnixNano()-r.lastCheck.Load() > int64(recoveryInterval)
}

func (r *FailoverListingCache) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary listing cache recovered")
	}
}

func (r *FailoverListingCache) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	if r.usePrimary() {
		listing, err := r.primary.GetListing(ctx, id)
		if err == nil {
			r.recovered()
			return listing, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetListing(ctx, id)
}

func (r *FailoverListingCache) SetListing(ctx context.Context, listing *models.Listing) error {
	if r.usePrimary() {
		err := r.primary.SetListing(ctx, listing)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetListing(ctx, listing)
}

// Invalidate clears both layers so a recovered primary never serves a stale copy
// written before the outage.
func (r *FailoverListingCache) Invalidate(ctx context.Context, id int64) error {
	_ = r.fallback.Invalidate(ctx, id)
	if r.usePrimary() {
		err := r.primary.Invalidate(ctx, id)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}
