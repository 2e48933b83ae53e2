package app

import (
	"context"
	"fmt"
	"sync"

	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// UserFetcher loads one user profile from the persistence layer
type UserFetcher interface {
	GetUserByID(ctx context.Context, userID string) (*domain.UserRecord, error)
}

// UserDirectory the single shared user cache. Hydration results are idempotent
// upserts, so racing fetches for the same id are harmless; singleflight only
// saves the duplicate round trips.
type UserDirectory struct {
	mu      sync.RWMutex
	users   map[string]domain.UserRecord
	fetcher UserFetcher
	group   singleflight.Group
}

// NewUserDirectory create a UserDirectory
func NewUserDirectory(fetcher UserFetcher) *UserDirectory {
	return &UserDirectory{
		users:   make(map[string]domain.UserRecord),
		fetcher: fetcher,
	}
}

// Lookup synchronous cache read
func (d *UserDirectory) Lookup(userID string) (domain.UserRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	return u, ok
}

// Upsert store a profile, keeping a presence status already known for it
func (d *UserDirectory) Upsert(u domain.UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.users[u.ID]; ok && u.Status == "" {
		u.Status = prev.Status
	}
	if u.Status == "" {
		u.Status = domain.StatusOffline
	}
	d.users[u.ID] = u
}

// PatchStatus update the status of a known user. Unknown users are not
// created here; the update is dropped and false returned.
func (d *UserDirectory) PatchStatus(userID string, status domain.PresenceStatus) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return false
	}
	u.Status = status
	d.users[userID] = u
	return true
}

// Hydrate fetch a profile on cache miss; concurrent calls for one id share a single fetch
func (d *UserDirectory) Hydrate(ctx context.Context, userID string) (domain.UserRecord, error) {
	if u, ok := d.Lookup(userID); ok {
		return u, nil
	}
	v, err, shared := d.group.Do(userID, func() (interface{}, error) {
		u, err := d.fetcher.GetUserByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		d.Upsert(*u)
		rec, _ := d.Lookup(userID)
		return rec, nil
	})
	if err != nil {
		logger.Log.Warn("user hydration failed", zap.String("user_id", userID), zap.Error(err))
		return domain.UserRecord{}, err
	}
	logger.Log.Debug("user hydrated", zap.String("user_id", userID), zap.Bool("shared", shared))
	return v.(domain.UserRecord), nil
}
