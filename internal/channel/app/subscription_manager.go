package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"channel_sync_service/internal/channel/domain"
	errprocess "channel_sync_service/pkg/err"
	"channel_sync_service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ChangeFeed per-channel row change subscription
type ChangeFeed interface {
	// Subscribe returns once the transport acknowledged the subscription
	Subscribe(ctx context.Context, channelID string) (FeedSubscription, error)
}

// FeedSubscription one live change-feed subscription
type FeedSubscription interface {
	// Events is closed when the subscription ends
	Events() <-chan domain.ChangeEvent
	// Err why Events was closed; nil after Close
	Err() error
	Close() error
}

// Broadcaster ephemeral per-channel broadcast transport
type Broadcaster interface {
	Join(ctx context.Context, channelID string) (BroadcastSubscription, error)
	Publish(ctx context.Context, channelID string, kind domain.BroadcastKind, payload interface{}) error
}

// BroadcastSubscription typed streams of one joined channel
type BroadcastSubscription interface {
	Pins() <-chan domain.PinnedMessageEvent
	Typing() <-chan domain.TypingIndicatorEvent
	Presence() <-chan domain.PresenceEvent
	Close() error
}

// Inbound the engine loop's typed input channels
type Inbound struct {
	Feed     chan domain.ChangeEvent
	Pins     chan domain.PinnedMessageEvent
	Typing   chan domain.TypingIndicatorEvent
	Presence chan domain.PresenceEvent
}

// NewInbound buffered input channels
func NewInbound(size int) Inbound {
	return Inbound{
		Feed:     make(chan domain.ChangeEvent, size),
		Pins:     make(chan domain.PinnedMessageEvent, size),
		Typing:   make(chan domain.TypingIndicatorEvent, size),
		Presence: make(chan domain.PresenceEvent, size),
	}
}

type channelSub struct {
	channelID string
	feed      FeedSubscription
	bc        BroadcastSubscription
	cancel    context.CancelFunc
	done      chan struct{}
}

// openAttempt a subscribe in progress. It runs without the lifecycle lock so
// teardown can cancel it; done closes once feed and bc are settled.
type openAttempt struct {
	channelID string
	parent    context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	feed FeedSubscription
	bc   BroadcastSubscription
	err  error
}

// SubscriptionManager owns the change-feed and broadcast subscriptions. At most
// one of each exists per channel; switching channels closes the old ones before
// the new ones are opened, and going offline or hidden closes everything.
type SubscriptionManager struct {
	lifecycle sync.Mutex // serialises open/close/switch
	mu        sync.RWMutex
	active    map[string]*channelSub
	attempts  map[string]*openAttempt
	focused   string
	offline   bool
	hidden    bool
	root      context.Context

	feed       ChangeFeed
	bc         Broadcaster
	rec        *Reconciler
	in         Inbound
	metrics    *Metrics
	newBackOff func() backoff.BackOff
	onClosed   func(channelID string)
	onOpened   func(ctx context.Context, channelID string)
}

// NewSubscriptionManager create a SubscriptionManager; maxElapsed bounds reconnect attempts
func NewSubscriptionManager(feed ChangeFeed, bc Broadcaster, rec *Reconciler, in Inbound, metrics *Metrics, maxElapsed time.Duration) *SubscriptionManager {
	return &SubscriptionManager{
		active:   make(map[string]*channelSub),
		attempts: make(map[string]*openAttempt),
		root:     context.Background(),
		feed:    feed,
		bc:      bc,
		rec:     rec,
		in:      in,
		metrics: metrics,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 15 * time.Second
			b.MaxElapsedTime = maxElapsed
			return b
		},
		onClosed: func(string) {},
		onOpened: func(context.Context, string) {},
	}
}

// Start bind reconnect loops to ctx
func (m *SubscriptionManager) Start(ctx context.Context) {
	m.lifecycle.Lock()
	m.root = ctx
	m.lifecycle.Unlock()
}

// OnClosed hook run after a channel's subscriptions are torn down
func (m *SubscriptionManager) OnClosed(fn func(channelID string)) {
	m.onClosed = fn
}

// OnOpened hook run once a channel is SUBSCRIBED, before its events are
// forwarded; events arriving meanwhile queue in the transport
func (m *SubscriptionManager) OnOpened(fn func(ctx context.Context, channelID string)) {
	m.onOpened = fn
}

// Focused channel the UI is looking at
func (m *SubscriptionManager) Focused() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.focused
}

// Active channels with live subscriptions, sorted
func (m *SubscriptionManager) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsActive channel has live subscriptions
func (m *SubscriptionManager) IsActive(channelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[channelID]
	return ok
}

// Switch close the focused channel, then open channelID
func (m *SubscriptionManager) Switch(ctx context.Context, channelID string) error {
	m.lifecycle.Lock()
	m.mu.Lock()
	prev := m.focused
	m.focused = channelID
	m.mu.Unlock()

	if prev != "" && prev != channelID {
		m.closeLocked(prev)
	}
	a := m.beginLocked(ctx, channelID)
	m.lifecycle.Unlock()
	return m.run(a)
}

// Open subscribe to a channel without changing focus; a second Open is a no-op
func (m *SubscriptionManager) Open(ctx context.Context, channelID string) error {
	m.lifecycle.Lock()
	a := m.beginLocked(ctx, channelID)
	m.lifecycle.Unlock()
	return m.run(a)
}

// Close tear a channel's subscriptions down
func (m *SubscriptionManager) Close(channelID string) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.focused == channelID {
		m.focused = ""
	}
	m.mu.Unlock()
	m.closeLocked(channelID)
}

// GoOffline network lost: drop every subscription and pending retry now
// instead of letting them error out
func (m *SubscriptionManager) GoOffline() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.mu.Lock()
	m.offline = true
	m.mu.Unlock()
	m.closeAllLocked()
	logger.Log.Info("offline, all subscriptions closed")
}

// GoOnline network back: reopen the focused channel
func (m *SubscriptionManager) GoOnline(ctx context.Context) error {
	m.lifecycle.Lock()
	m.mu.Lock()
	m.offline = false
	m.mu.Unlock()
	a := m.reopenFocusedLocked(ctx)
	m.lifecycle.Unlock()
	return m.run(a)
}

// Hide tab hidden
func (m *SubscriptionManager) Hide() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.mu.Lock()
	m.hidden = true
	m.mu.Unlock()
	m.closeAllLocked()
}

// Show tab visible again
func (m *SubscriptionManager) Show(ctx context.Context) error {
	m.lifecycle.Lock()
	m.mu.Lock()
	m.hidden = false
	m.mu.Unlock()
	a := m.reopenFocusedLocked(ctx)
	m.lifecycle.Unlock()
	return m.run(a)
}

// CloseAll tear everything down (shutdown)
func (m *SubscriptionManager) CloseAll() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.closeAllLocked()
}

func (m *SubscriptionManager) reopenFocusedLocked(ctx context.Context) *openAttempt {
	m.mu.RLock()
	focused := m.focused
	m.mu.RUnlock()
	if focused == "" {
		return nil
	}
	return m.beginLocked(ctx, focused)
}

// beginLocked register an open attempt; nil when the channel is already live,
// already being opened, or everything is paused (GoOnline / Show reopen it)
func (m *SubscriptionManager) beginLocked(ctx context.Context, channelID string) *openAttempt {
	m.mu.Lock()
	_, live := m.active[channelID]
	_, opening := m.attempts[channelID]
	if live || opening || m.offline || m.hidden {
		m.mu.Unlock()
		return nil
	}
	actx, cancel := context.WithCancel(ctx)
	a := &openAttempt{channelID: channelID, parent: ctx, ctx: actx, cancel: cancel, done: make(chan struct{})}
	m.attempts[channelID] = a
	m.mu.Unlock()

	m.rec.SetState(channelID, domain.StateSubscribing)
	return a
}

// run subscribe with backoff outside the lifecycle lock, then commit under it.
// A teardown meanwhile cancels the attempt and owns whatever it opened.
func (m *SubscriptionManager) run(a *openAttempt) error {
	if a == nil {
		return nil
	}
	defer a.cancel()

	a.feed, a.bc, a.err = m.subscribe(a.ctx, a.channelID)
	close(a.done)

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	current := m.attempts[a.channelID] == a
	if current {
		delete(m.attempts, a.channelID)
	}
	m.mu.Unlock()
	if !current {
		logger.Log.Debug("subscribe attempt cancelled", zap.String("channel_id", a.channelID))
		return nil
	}

	if err := a.err; err != nil {
		if errors.Is(err, domain.ErrSubscriptionAuth) {
			m.rec.SetState(a.channelID, domain.StateDegraded)
			logger.Log.Error("subscription refused, channel degraded", zap.String("channel_id", a.channelID), zap.Error(err))
			return errprocess.New(errprocess.KindSubscriptionAuth, "subscribe "+a.channelID, err)
		}
		m.rec.SetState(a.channelID, domain.StateUnsubscribed)
		return errprocess.New(errprocess.KindTransientNetwork, "subscribe "+a.channelID, err)
	}

	pumpCtx, cancel := context.WithCancel(m.root)
	s := &channelSub{channelID: a.channelID, feed: a.feed, bc: a.bc, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.active[a.channelID] = s
	n := len(m.active)
	m.mu.Unlock()

	m.metrics.subscriptions(n)
	m.rec.SetState(a.channelID, domain.StateSubscribed)
	m.onOpened(a.parent, a.channelID)
	go m.pump(pumpCtx, s)

	logger.Log.Info("channel subscribed", zap.String("channel_id", a.channelID))
	return nil
}

func (m *SubscriptionManager) subscribe(ctx context.Context, channelID string) (FeedSubscription, BroadcastSubscription, error) {
	var (
		feed FeedSubscription
		bc   BroadcastSubscription
	)
	op := func() error {
		f, err := m.feed.Subscribe(ctx, channelID)
		if err != nil {
			return classifyOpen(err)
		}
		b, err := m.bc.Join(ctx, channelID)
		if err != nil {
			f.Close()
			return classifyOpen(err)
		}
		feed, bc = f, b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Log.Warn("subscribe failed, retrying", zap.String("channel_id", channelID),
			zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(m.newBackOff(), ctx), notify); err != nil {
		return nil, nil, err
	}
	return feed, bc, nil
}

func classifyOpen(err error) error {
	if errors.Is(err, domain.ErrSubscriptionAuth) {
		return backoff.Permanent(err)
	}
	return err
}

func (m *SubscriptionManager) closeLocked(channelID string) {
	m.mu.Lock()
	a, opening := m.attempts[channelID]
	delete(m.attempts, channelID)
	s, ok := m.active[channelID]
	delete(m.active, channelID)
	n := len(m.active)
	m.mu.Unlock()

	if opening {
		m.abandon(a)
	}
	if ok {
		s.cancel()
		if err := s.feed.Close(); err != nil {
			logger.Log.Warn("close change feed", zap.String("channel_id", channelID), zap.Error(err))
		}
		if err := s.bc.Close(); err != nil {
			logger.Log.Warn("close broadcast", zap.String("channel_id", channelID), zap.Error(err))
		}
		m.metrics.subscriptions(n)
		logger.Log.Info("channel unsubscribed", zap.String("channel_id", channelID))
	}
	if m.rec.State(channelID) != domain.StateDegraded || ok {
		m.rec.SetState(channelID, domain.StateUnsubscribed)
	}
	m.onClosed(channelID)
}

// abandon cancel an attempt and close what it managed to open, so a channel
// never has two subscriptions even briefly
func (m *SubscriptionManager) abandon(a *openAttempt) {
	a.cancel()
	<-a.done
	if a.feed != nil {
		a.feed.Close()
	}
	if a.bc != nil {
		a.bc.Close()
	}
}

func (m *SubscriptionManager) closeAllLocked() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.active)+len(m.attempts))
	for id := range m.active {
		ids = append(ids, id)
	}
	for id := range m.attempts {
		if _, ok := m.active[id]; !ok {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		m.closeLocked(id)
	}
}

// pump forward a subscription's streams into the engine loop
func (m *SubscriptionManager) pump(ctx context.Context, s *channelSub) {
	defer close(s.done)

	events := s.feed.Events()
	pins, typing, presence := s.bc.Pins(), s.bc.Typing(), s.bc.Presence()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					go m.reconnect(s, s.feed.Err())
				}
				return
			}
			select {
			case m.in.Feed <- evt:
			case <-ctx.Done():
				return
			}
		case evt, ok := <-pins:
			if !ok {
				pins = nil
				continue
			}
			select {
			case m.in.Pins <- evt:
			case <-ctx.Done():
				return
			}
		case evt, ok := <-typing:
			if !ok {
				typing = nil
				continue
			}
			select {
			case m.in.Typing <- evt:
			case <-ctx.Done():
				return
			}
		case evt, ok := <-presence:
			if !ok {
				presence = nil
				continue
			}
			select {
			case m.in.Presence <- evt:
			case <-ctx.Done():
				return
			}
		}
	}
}

// reconnect the feed dropped underneath us; replace the subscription with
// backoff. The retries run unlocked so GoOffline, Hide, Switch or Close can
// cancel them.
func (m *SubscriptionManager) reconnect(s *channelSub, cause error) {
	m.lifecycle.Lock()
	m.mu.RLock()
	current := m.active[s.channelID]
	m.mu.RUnlock()
	if current != s {
		m.lifecycle.Unlock()
		return
	}
	logger.Log.Warn("change feed dropped, reconnecting", zap.String("channel_id", s.channelID), zap.Error(cause))
	m.closeLocked(s.channelID)
	a := m.beginLocked(m.root, s.channelID)
	m.lifecycle.Unlock()

	if err := m.run(a); err != nil {
		logger.Log.Error("reconnect gave up", zap.String("channel_id", s.channelID), zap.Error(err))
	}
}

// String debug view
func (m *SubscriptionManager) String() string {
	return fmt.Sprintf("focused=%q active=%v", m.Focused(), m.Active())
}
