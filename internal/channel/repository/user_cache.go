package repository

import (
	"context"
	"errors"
	"time"

	"channel_sync_service/internal/channel/app"
	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/database"
	"channel_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// CachedUserFetcher read-through redis cache in front of a UserFetcher.
// Cache failures fall back to the source; only the source decides not-found.
type CachedUserFetcher struct {
	source app.UserFetcher
	cache  database.RedisRepository[domain.UserRecord]
	ttl    time.Duration
}

// NewCachedUserFetcher create CachedUserFetcher
func NewCachedUserFetcher(source app.UserFetcher, cache database.RedisRepository[domain.UserRecord], ttl time.Duration) *CachedUserFetcher {
	return &CachedUserFetcher{source: source, cache: cache, ttl: ttl}
}

var _ app.UserFetcher = (*CachedUserFetcher)(nil)

// GetUserByID cached profile or the source's answer, cached for ttl
func (c *CachedUserFetcher) GetUserByID(ctx context.Context, userID string) (*domain.UserRecord, error) {
	u, err := c.cache.Get(ctx, userID)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, database.ErrCacheMiss) {
		logger.Log.Warn("user cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	fetched, err := c.source.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// presence is live state, never cached
	cached := *fetched
	cached.Status = ""
	if err := c.cache.Set(ctx, userID, cached, c.ttl); err != nil {
		logger.Log.Warn("user cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return fetched, nil
}
