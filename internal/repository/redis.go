package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stayfinder/internal/config"
	"stayfinder/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisListingCache stores listing snapshots as JSON strings with a TTL.
type RedisListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from configuration without connecting.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisListingCache(client *redis.Client, ttl time.Duration) *RedisListingCache {
	return &RedisListingCache{
		client: client,
		ttl:    ttl,
	}
}

func listingKey(id int64) string {
	return fmt.Sprintf("listing:%d", id)
}

// GetListing returns nil without error on a cache miss.
func (r *RedisListingCache) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, listingKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing from redis: %w", err)
	}

	var listing models.Listing
	if err := json.Unmarshal([]byte(val), &listing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing: %w", err)
	}
	return &listing, nil
}

func (r *RedisListingCache) SetListing(ctx context.Context, listing *models.Listing) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}
	if err := r.client.Set(ctx, listingKey(listing.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set listing in redis: %w", err)
	}
	return nil
}

func (r *RedisListingCache) Invalidate(ctx context.Context, id int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, listingKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete listing from redis: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
