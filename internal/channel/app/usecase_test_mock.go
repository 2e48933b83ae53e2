package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"channel_sync_service/internal/channel/domain"

	"github.com/stretchr/testify/mock"
)

// MockPersistence mock Persistence
type MockPersistence struct {
	mock.Mock
}

// GetUserByID mock get user
func (m *MockPersistence) GetUserByID(ctx context.Context, userID string) (*domain.UserRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.UserRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// InsertMessage mock insert message
func (m *MockPersistence) InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(domain.Message), args.Error(1)
}

// EmojiReaction mock reaction toggle
func (m *MockPersistence) EmojiReaction(ctx context.Context, messageID, key, userID string) (domain.Reactions, error) {
	args := m.Called(ctx, messageID, key, userID)
	if args.Get(0) != nil {
		return args.Get(0).(domain.Reactions), args.Error(1)
	}
	return nil, args.Error(1)
}

// DeleteMessage mock delete
func (m *MockPersistence) DeleteMessage(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

// SetPinned mock pin flag write
func (m *MockPersistence) SetPinned(ctx context.Context, channelID, messageID string, pinned bool, actorID string) error {
	args := m.Called(ctx, channelID, messageID, pinned, actorID)
	return args.Error(0)
}

// ListPinned mock pinned list
func (m *MockPersistence) ListPinned(ctx context.Context, channelID string) ([]domain.AggregateEntry, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.AggregateEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

// AddBookmark mock add bookmark
func (m *MockPersistence) AddBookmark(ctx context.Context, entry domain.AggregateEntry) (domain.AggregateEntry, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(domain.AggregateEntry), args.Error(1)
}

// RemoveBookmark mock remove bookmark
func (m *MockPersistence) RemoveBookmark(ctx context.Context, userID, messageID string) error {
	args := m.Called(ctx, userID, messageID)
	return args.Error(0)
}

// GetUserBookmarks mock bookmark page
func (m *MockPersistence) GetUserBookmarks(ctx context.Context, workspaceID, userID string, archived *bool, limit, offset int) (domain.BookmarkPage, error) {
	args := m.Called(ctx, workspaceID, userID, archived, limit, offset)
	return args.Get(0).(domain.BookmarkPage), args.Error(1)
}

// ListMessages mock history page
func (m *MockPersistence) ListMessages(ctx context.Context, channelID string, before *time.Time, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, channelID, before, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockUserFetcher mock UserFetcher
type MockUserFetcher struct {
	mock.Mock
}

// GetUserByID mock get user
func (m *MockUserFetcher) GetUserByID(ctx context.Context, userID string) (*domain.UserRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.UserRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeFeedSub in-memory FeedSubscription
type fakeFeedSub struct {
	channelID string
	events    chan domain.ChangeEvent
	once      sync.Once
	err       error
	onClose   func()
}

func (s *fakeFeedSub) Events() <-chan domain.ChangeEvent { return s.events }
func (s *fakeFeedSub) Err() error                        { return s.err }
func (s *fakeFeedSub) Close() error {
	s.once.Do(func() {
		close(s.events)
		s.onClose()
	})
	return nil
}

// drop simulate the transport going away
func (s *fakeFeedSub) drop(err error) {
	s.err = err
	s.Close()
}

// MockChangeFeed records every open subscription; Subscribe failures come from
// the embedded mock when an expectation is set for the channel
type MockChangeFeed struct {
	mock.Mock

	mu        sync.Mutex
	subs      map[string][]*fakeFeedSub
	open      map[string]int
	maxOpen   map[string]int
	expectErr bool
}

// NewMockChangeFeed create MockChangeFeed
func NewMockChangeFeed() *MockChangeFeed {
	return &MockChangeFeed{
		subs:    make(map[string][]*fakeFeedSub),
		open:    make(map[string]int),
		maxOpen: make(map[string]int),
	}
}

// Subscribe mock subscribe
func (f *MockChangeFeed) Subscribe(ctx context.Context, channelID string) (FeedSubscription, error) {
	f.mu.Lock()
	useMock := f.expectErr
	f.mu.Unlock()
	if useMock {
		args := f.Called(channelID)
		if err := args.Error(0); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeFeedSub{channelID: channelID, events: make(chan domain.ChangeEvent, 64)}
	s.onClose = func() {
		f.mu.Lock()
		f.open[channelID]--
		f.mu.Unlock()
	}
	f.subs[channelID] = append(f.subs[channelID], s)
	f.open[channelID]++
	if f.open[channelID] > f.maxOpen[channelID] {
		f.maxOpen[channelID] = f.open[channelID]
	}
	return s, nil
}

// FailWith route Subscribe through the embedded mock
func (f *MockChangeFeed) FailWith() *MockChangeFeed {
	f.mu.Lock()
	f.expectErr = true
	f.mu.Unlock()
	return f
}

// Push deliver evt on the newest subscription of its channel
func (f *MockChangeFeed) Push(evt domain.ChangeEvent) {
	f.latest(evt.ChannelFilter).events <- evt
}

func (f *MockChangeFeed) latest(channelID string) *fakeFeedSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.subs[channelID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// OpenCount live subscriptions for a channel
func (f *MockChangeFeed) OpenCount(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[channelID]
}

// MaxOpen highest number of simultaneous subscriptions ever seen for a channel
func (f *MockChangeFeed) MaxOpen(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen[channelID]
}

// SubscribeCount subscriptions ever opened for a channel
func (f *MockChangeFeed) SubscribeCount(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[channelID])
}

// fakeBroadcastSub in-memory BroadcastSubscription
type fakeBroadcastSub struct {
	pins     chan domain.PinnedMessageEvent
	typing   chan domain.TypingIndicatorEvent
	presence chan domain.PresenceEvent
	once     sync.Once
}

func (s *fakeBroadcastSub) Pins() <-chan domain.PinnedMessageEvent     { return s.pins }
func (s *fakeBroadcastSub) Typing() <-chan domain.TypingIndicatorEvent { return s.typing }
func (s *fakeBroadcastSub) Presence() <-chan domain.PresenceEvent      { return s.presence }
func (s *fakeBroadcastSub) Close() error {
	s.once.Do(func() {
		close(s.pins)
		close(s.typing)
		close(s.presence)
	})
	return nil
}

type published struct {
	ChannelID string
	Kind      domain.BroadcastKind
	Payload   interface{}
}

// MockBroadcaster in-memory Broadcaster recording everything published
type MockBroadcaster struct {
	mu        sync.Mutex
	joined    map[string]*fakeBroadcastSub
	published []published
}

// NewMockBroadcaster create MockBroadcaster
func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{joined: make(map[string]*fakeBroadcastSub)}
}

// Join mock join
func (b *MockBroadcaster) Join(ctx context.Context, channelID string) (BroadcastSubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeBroadcastSub{
		pins:     make(chan domain.PinnedMessageEvent, 16),
		typing:   make(chan domain.TypingIndicatorEvent, 16),
		presence: make(chan domain.PresenceEvent, 16),
	}
	b.joined[channelID] = s
	return s, nil
}

// Publish mock publish
func (b *MockBroadcaster) Publish(ctx context.Context, channelID string, kind domain.BroadcastKind, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{ChannelID: channelID, Kind: kind, Payload: payload})
	return nil
}

// Published events of one kind, in publish order
func (b *MockBroadcaster) Published(kind domain.BroadcastKind) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, p := range b.published {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// PushPresence deliver a presence event to a joined channel
func (b *MockBroadcaster) PushPresence(evt domain.PresenceEvent) {
	b.mu.Lock()
	s := b.joined[evt.ChannelID]
	b.mu.Unlock()
	s.presence <- evt
}

// PushTyping deliver a typing event to a joined channel
func (b *MockBroadcaster) PushTyping(evt domain.TypingIndicatorEvent) {
	b.mu.Lock()
	s := b.joined[evt.ActiveChannelID]
	b.mu.Unlock()
	s.typing <- evt
}

// PushPin deliver a pin event to a joined channel
func (b *MockBroadcaster) PushPin(evt domain.PinnedMessageEvent) {
	b.mu.Lock()
	s := b.joined[evt.Message.ChannelID]
	b.mu.Unlock()
	s.pins <- evt
}

// fakeClock manual clock; timers fire on Advance
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance move time forward and run due timers in deadline order
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	keep := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case !t.at.After(c.now):
			t.fired = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// fireAll run every timer's func, stopped ones included, as a timer whose
// func was already running when Stop was called would
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	all := append([]*fakeTimer(nil), c.timers...)
	c.timers = nil
	c.mu.Unlock()
	for _, t := range all {
		t.f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
