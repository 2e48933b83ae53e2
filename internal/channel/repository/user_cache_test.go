package repository

import (
	"context"
	"testing"
	"time"

	"channel_sync_service/internal/channel/app"
	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCachedUserFetcher_ReadThrough(t *testing.T) {
	client, mr := newTestRedis(t)
	source := new(app.MockUserFetcher)
	source.On("GetUserByID", mock.Anything, "u1").
		Return(&domain.UserRecord{ID: "u1", DisplayName: "Ann", Status: domain.StatusOnline}, nil).Once()

	c := NewCachedUserFetcher(source, database.NewRedisRepository[domain.UserRecord](client, "user:"), time.Minute)
	ctx := context.Background()

	u, err := c.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.DisplayName)
	assert.True(t, mr.Exists("user:u1"))

	u, err = c.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.DisplayName)
	assert.Empty(t, u.Status, "presence is not served from the cache")
	source.AssertNumberOfCalls(t, "GetUserByID", 1)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("user:u1"))
}

func TestCachedUserFetcher_NotFoundIsNotCached(t *testing.T) {
	client, mr := newTestRedis(t)
	source := new(app.MockUserFetcher)
	source.On("GetUserByID", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	c := NewCachedUserFetcher(source, database.NewRedisRepository[domain.UserRecord](client, "user:"), time.Minute)

	_, err := c.GetUserByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, mr.Exists("user:ghost"))
}

func TestCachedUserFetcher_CacheDownFallsBack(t *testing.T) {
	client, mr := newTestRedis(t)
	mr.Close()
	source := new(app.MockUserFetcher)
	source.On("GetUserByID", mock.Anything, "u1").Return(&domain.UserRecord{ID: "u1"}, nil)

	c := NewCachedUserFetcher(source, database.NewRedisRepository[domain.UserRecord](client, "user:"), time.Minute)

	u, err := c.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}
