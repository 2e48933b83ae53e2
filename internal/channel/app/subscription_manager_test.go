package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"channel_sync_service/internal/channel/domain"
	errprocess "channel_sync_service/pkg/err"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type subsFixture struct {
	feed *MockChangeFeed
	bc   *MockBroadcaster
	rec  *Reconciler
	in   Inbound
	m    *SubscriptionManager
}

func newSubsFixture() *subsFixture {
	f := &subsFixture{
		feed: NewMockChangeFeed(),
		bc:   NewMockBroadcaster(),
		in:   NewInbound(16),
	}
	f.rec = NewReconciler(newStore(), NewUserDirectory(new(MockUserFetcher)), 15*time.Second, nil)
	f.m = NewSubscriptionManager(f.feed, f.bc, f.rec, f.in, nil, time.Second)
	f.m.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}
	return f
}

func TestSubscriptionManager_SwitchTearsDownFirst(t *testing.T) {
	f := newSubsFixture()
	ctx := context.Background()

	require.NoError(t, f.m.Switch(ctx, "c1"))
	assert.Equal(t, domain.StateSubscribed, f.rec.State("c1"))

	require.NoError(t, f.m.Switch(ctx, "c2"))
	assert.Equal(t, 0, f.feed.OpenCount("c1"))
	assert.Equal(t, 1, f.feed.OpenCount("c2"))
	assert.Equal(t, domain.StateUnsubscribed, f.rec.State("c1"))
	assert.Equal(t, domain.StateSubscribed, f.rec.State("c2"))
	assert.Equal(t, []string{"c2"}, f.m.Active())
	assert.Equal(t, "c2", f.m.Focused())
}

func TestSubscriptionManager_NeverTwoSubscriptionsPerChannel(t *testing.T) {
	f := newSubsFixture()
	ctx := context.Background()

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 25; i++ {
				target := "c1"
				if (i+g)%2 == 0 {
					target = "c2"
				}
				_ = f.m.Switch(ctx, target)
				_ = f.m.Open(ctx, target)
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	assert.LessOrEqual(t, f.feed.MaxOpen("c1"), 1)
	assert.LessOrEqual(t, f.feed.MaxOpen("c2"), 1)
}

func TestSubscriptionManager_OpenTwiceIsNoop(t *testing.T) {
	f := newSubsFixture()
	ctx := context.Background()

	require.NoError(t, f.m.Open(ctx, "c1"))
	require.NoError(t, f.m.Open(ctx, "c1"))
	assert.Equal(t, 1, f.feed.SubscribeCount("c1"))
}

func TestSubscriptionManager_OfflineAndOnline(t *testing.T) {
	f := newSubsFixture()
	ctx := context.Background()
	require.NoError(t, f.m.Switch(ctx, "c1"))

	f.m.GoOffline()
	assert.Empty(t, f.m.Active())
	assert.Equal(t, 0, f.feed.OpenCount("c1"))

	// focusing while offline only records the focus
	require.NoError(t, f.m.Switch(ctx, "c2"))
	assert.Empty(t, f.m.Active())

	require.NoError(t, f.m.GoOnline(ctx))
	assert.Equal(t, []string{"c2"}, f.m.Active())
	assert.Equal(t, 1, f.feed.SubscribeCount("c1"))
}

func TestSubscriptionManager_HideAndShow(t *testing.T) {
	f := newSubsFixture()
	ctx := context.Background()
	require.NoError(t, f.m.Switch(ctx, "c1"))

	f.m.Hide()
	assert.Empty(t, f.m.Active())
	require.NoError(t, f.m.Show(ctx))
	assert.Equal(t, []string{"c1"}, f.m.Active())
	assert.Equal(t, 2, f.feed.SubscribeCount("c1"))
}

func TestSubscriptionManager_AuthFailureDegradesOneChannel(t *testing.T) {
	f := newSubsFixture()
	f.feed.FailWith()
	f.feed.On("Subscribe", "c1").Return(domain.ErrSubscriptionAuth)
	f.feed.On("Subscribe", "c2").Return(nil)
	ctx := context.Background()

	err := f.m.Open(ctx, "c1")
	require.Error(t, err)
	assert.True(t, errprocess.Is(err, errprocess.KindSubscriptionAuth))
	assert.ErrorIs(t, err, domain.ErrSubscriptionAuth)
	assert.Equal(t, domain.StateDegraded, f.rec.State("c1"))
	f.feed.AssertNumberOfCalls(t, "Subscribe", 1)

	require.NoError(t, f.m.Open(ctx, "c2"))
	assert.Equal(t, domain.StateSubscribed, f.rec.State("c2"))
}

func TestSubscriptionManager_TransientFailureRetries(t *testing.T) {
	f := newSubsFixture()
	f.feed.FailWith()
	f.feed.On("Subscribe", "c1").Return(errors.New("connection refused")).Twice()
	f.feed.On("Subscribe", "c1").Return(nil)

	require.NoError(t, f.m.Open(context.Background(), "c1"))
	assert.Equal(t, domain.StateSubscribed, f.rec.State("c1"))
	f.feed.AssertNumberOfCalls(t, "Subscribe", 3)
}

func TestSubscriptionManager_TransientFailureGivesUp(t *testing.T) {
	f := newSubsFixture()
	f.feed.FailWith()
	f.feed.On("Subscribe", "c1").Return(errors.New("connection refused"))

	err := f.m.Open(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, errprocess.Is(err, errprocess.KindTransientNetwork))
	assert.Equal(t, domain.StateUnsubscribed, f.rec.State("c1"))
}

func TestSubscriptionManager_ForwardsAndReconnects(t *testing.T) {
	f := newSubsFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.m.Start(ctx)

	require.NoError(t, f.m.Open(ctx, "c1"))
	evt := change(domain.OpInsert, msgAt("A", "u1", 0))
	f.feed.Push(evt)

	select {
	case got := <-f.in.Feed:
		assert.Equal(t, "A", got.Row.ID)
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}

	f.bc.PushPresence(domain.PresenceEvent{ChannelID: "c1", UserID: "u2", Status: domain.StatusOnline})
	select {
	case got := <-f.in.Presence:
		assert.Equal(t, "u2", got.UserID)
	case <-time.After(time.Second):
		t.Fatal("presence not forwarded")
	}

	f.feed.latest("c1").drop(errors.New("connection reset"))
	assert.Eventually(t, func() bool {
		return f.feed.SubscribeCount("c1") == 2 && f.m.IsActive("c1")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.feed.OpenCount("c1"))
	assert.Equal(t, domain.StateSubscribed, f.rec.State("c1"))
}

func TestSubscriptionManager_CloseStopsForwarding(t *testing.T) {
	f := newSubsFixture()
	var closed []string
	f.m.OnClosed(func(id string) { closed = append(closed, id) })
	ctx := context.Background()

	require.NoError(t, f.m.Switch(ctx, "c1"))
	f.m.Close("c1")

	assert.Equal(t, []string{"c1"}, closed)
	assert.Equal(t, "", f.m.Focused())
	assert.Equal(t, 0, f.feed.OpenCount("c1"))
	assert.Equal(t, 1, f.feed.SubscribeCount("c1"), "no reconnect after a deliberate close")
}

// failingReconnect leaves c1 retrying a refused subscribe every 50ms
func failingReconnect(t *testing.T, f *subsFixture, ctx context.Context) *int32 {
	t.Helper()
	f.m.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 40)
	}
	f.m.Start(ctx)
	require.NoError(t, f.m.Switch(ctx, "c1"))

	var attempts int32
	f.feed.FailWith()
	f.feed.On("Subscribe", "c1").
		Run(func(mock.Arguments) { atomic.AddInt32(&attempts, 1) }).
		Return(errors.New("connection refused"))
	f.feed.latest("c1").drop(errors.New("connection reset"))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) >= 2 }, time.Second, 5*time.Millisecond)
	return &attempts
}

func TestSubscriptionManager_OfflineCancelsReconnect(t *testing.T) {
	f := newSubsFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	attempts := failingReconnect(t, f, ctx)

	start := time.Now()
	f.m.GoOffline()
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, f.m.Active())
	assert.Equal(t, domain.StateUnsubscribed, f.rec.State("c1"))

	// nothing retries while offline
	settled := atomic.LoadInt32(attempts)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(attempts))
}

func TestSubscriptionManager_SwitchDuringReconnect(t *testing.T) {
	f := newSubsFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	failingReconnect(t, f, ctx)
	f.feed.On("Subscribe", "c2").Return(nil)

	start := time.Now()
	require.NoError(t, f.m.Switch(ctx, "c2"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{"c2"}, f.m.Active())
	assert.Equal(t, domain.StateUnsubscribed, f.rec.State("c1"))
	assert.Equal(t, 0, f.feed.OpenCount("c1"))
}
