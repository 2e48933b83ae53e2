package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"channel_sync_service/internal/channel/app"
	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/database"
	testtool "channel_sync_service/pkg/test_tool"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres start a throwaway postgres with the schema applied
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in -short mode")
	}
	ctx := context.Background()

	container, host, port, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image: "postgres:16-alpine",
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	db, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    "postgres://test:test@" + host + ":" + port + "/testdb?sslmode=disable",
		RetryCount:    5,
		RetryInterval: 1,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, EnsureSchema(ctx, db))
	_, err = db.Exec(ctx, "INSERT INTO channels (id, workspace_id) VALUES ('c1', 'w1'), ('c2', 'w1')")
	require.NoError(t, err)
	_, err = db.Exec(ctx, "INSERT INTO users (id, username, display_name) VALUES ('u1', 'ann', 'Ann')")
	require.NoError(t, err)
	return db
}

func nextEvent(t *testing.T, sub app.FeedSubscription) domain.ChangeEvent {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "feed closed: %v", sub.Err())
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}
	return domain.ChangeEvent{}
}

func TestPostgres_ChangeFeedAndPersistence(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := NewMessageRepository(db)
	feed := NewPostgresChangeFeed(db)

	sub, err := feed.Subscribe(ctx, "c1")
	require.NoError(t, err)
	defer sub.Close()

	other, err := feed.Subscribe(ctx, "c2")
	require.NoError(t, err)
	defer other.Close()

	msg, err := repo.InsertMessage(ctx, domain.Message{ChannelID: "c1", UserID: "u1", Content: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, domain.IsTempID(msg.ID))

	evt := nextEvent(t, sub)
	assert.Equal(t, domain.OpInsert, evt.Operation)
	assert.Equal(t, msg.ID, evt.Row.ID)
	assert.Equal(t, "hello", evt.Row.Content)
	assert.WithinDuration(t, msg.CreatedAt, evt.Row.CreatedAt, time.Millisecond)

	reactions, err := repo.EmojiReaction(ctx, msg.ID, "+1", "u1")
	require.NoError(t, err)
	assert.True(t, reactions.Has("+1", "u1"))
	evt = nextEvent(t, sub)
	assert.Equal(t, domain.OpUpdate, evt.Operation)
	assert.True(t, evt.Row.Reactions.Has("+1", "u1"))

	reactions, err = repo.EmojiReaction(ctx, msg.ID, "+1", "u1")
	require.NoError(t, err)
	assert.Empty(t, reactions)
	nextEvent(t, sub)

	require.NoError(t, repo.SetPinned(ctx, "c1", msg.ID, true, "u1"))
	evt = nextEvent(t, sub)
	assert.True(t, evt.Row.IsPinned())
	pins, err := repo.ListPinned(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, msg.ID, pins[0].MessageID)
	require.NotNil(t, pins[0].Message)
	assert.Equal(t, "hello", pins[0].Message.Content)

	require.NoError(t, repo.DeleteMessage(ctx, msg.ID))
	evt = nextEvent(t, sub)
	assert.Equal(t, domain.OpUpdate, evt.Operation)
	assert.True(t, evt.Row.IsDeleted())
	assert.ErrorIs(t, repo.DeleteMessage(ctx, msg.ID), domain.ErrNotFound)

	select {
	case evt := <-other.Events():
		t.Fatalf("c2 received an event of c1: %+v", evt)
	default:
	}
}

func TestPostgres_HistoryAndBookmarks(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := NewMessageRepository(db)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := db.Exec(ctx,
			"INSERT INTO messages (id, channel_id, user_id, content, created_at) VALUES ($1, 'c1', 'u1', $2, $3)",
			string(rune('A'+i)), "m", base.Add(time.Duration(i)*time.Second),
		)
		require.NoError(t, err)
	}

	page, err := repo.ListMessages(ctx, "c1", nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "E", page[0].ID)
	assert.Equal(t, "D", page[1].ID)

	before := page[1].CreatedAt
	page, err = repo.ListMessages(ctx, "c1", &before, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "C", page[0].ID)

	for _, id := range []string{"A", "B", "C"} {
		_, err := repo.AddBookmark(ctx, domain.AggregateEntry{ChannelID: "c1", MessageID: id, ActorID: "u1"})
		require.NoError(t, err)
	}
	_, err = db.Exec(ctx, "UPDATE bookmarks SET archived = true WHERE message_id = 'A'")
	require.NoError(t, err)

	bm, err := repo.GetUserBookmarks(ctx, "w1", "u1", nil, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, bm.Total)
	assert.Len(t, bm.Entries, 2)
	assert.True(t, bm.HasMore)

	archived := true
	bm, err = repo.GetUserBookmarks(ctx, "w1", "u1", &archived, 10, 0)
	require.NoError(t, err)
	require.Len(t, bm.Entries, 1)
	assert.Equal(t, "A", bm.Entries[0].MessageID)

	require.NoError(t, repo.RemoveBookmark(ctx, "u1", "B"))
	bm, err = repo.GetUserBookmarks(ctx, "w1", "u1", nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, bm.Total)
	assert.False(t, bm.HasMore)

	u, err := repo.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.DisplayName)
	_, err = repo.GetUserByID(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgres_LargeRowIsLoadedBack(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := NewMessageRepository(db)
	feed := NewPostgresChangeFeed(db)

	sub, err := feed.Subscribe(ctx, "c1")
	require.NoError(t, err)
	defer sub.Close()

	long := strings.Repeat("lorem ipsum ", 850)
	msg, err := repo.InsertMessage(ctx, domain.Message{ChannelID: "c1", UserID: "u1", Content: long})
	require.NoError(t, err)

	evt := nextEvent(t, sub)
	assert.Equal(t, domain.OpInsert, evt.Operation)
	assert.False(t, evt.Truncated)
	assert.Equal(t, msg.ID, evt.Row.ID)
	assert.Equal(t, long, evt.Row.Content)
	assert.Equal(t, "u1", evt.Row.UserID)

	reactions, err := repo.EmojiReaction(ctx, msg.ID, "+1", "u1")
	require.NoError(t, err)
	assert.True(t, reactions.Has("+1", "u1"))
	evt = nextEvent(t, sub)
	assert.Equal(t, domain.OpUpdate, evt.Operation)
	assert.True(t, evt.Row.Reactions.Has("+1", "u1"))
	assert.Equal(t, long, evt.Row.Content)

	require.NoError(t, repo.DeleteMessage(ctx, msg.ID))
	evt = nextEvent(t, sub)
	assert.True(t, evt.Row.IsDeleted())
}
