package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/config"
	errprocess "channel_sync_service/pkg/err"
	"channel_sync_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persistence the backend the agent writes through and loads pages from
type Persistence interface {
	UserFetcher
	InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	// EmojiReaction toggles and returns the authoritative reaction map
	EmojiReaction(ctx context.Context, messageID, key, userID string) (domain.Reactions, error)
	DeleteMessage(ctx context.Context, messageID string) error
	SetPinned(ctx context.Context, channelID, messageID string, pinned bool, actorID string) error
	ListPinned(ctx context.Context, channelID string) ([]domain.AggregateEntry, error)
	AddBookmark(ctx context.Context, entry domain.AggregateEntry) (domain.AggregateEntry, error)
	RemoveBookmark(ctx context.Context, userID, messageID string) error
	GetUserBookmarks(ctx context.Context, workspaceID, userID string, archived *bool, limit, offset int) (domain.BookmarkPage, error)
	// ListMessages newest-first page of messages created before before (nil = latest)
	ListMessages(ctx context.Context, channelID string, before *time.Time, limit int) ([]domain.Message, error)
}

const (
	inboundBuffer  = 256
	outboxBuffer   = 256
	hydrateTimeout = 10 * time.Second
)

type hydrationResult struct {
	userID string
	user   domain.UserRecord
	err    error
}

type outbound struct {
	channelID string
	kind      domain.BroadcastKind
	payload   interface{}
}

// MessageSyncEngine keeps the local picture of every open channel in step
// with the backend. Run applies feed events, broadcasts and hydration results
// one at a time; actions run on the caller's goroutine and write optimistically.
type MessageSyncEngine struct {
	cfg         config.EngineConfig
	self        domain.UserRecord
	workspaceID string
	clock       Clock
	persist     Persistence
	bc          Broadcaster

	store      *MessageStore
	users      *UserDirectory
	reconciler *Reconciler
	presence   *PresenceIndex
	reactions  *ReactionStore
	pins       *PinStore
	bookmarks  *BookmarkStore
	registry   *ChannelRegistry
	subs       *SubscriptionManager
	metrics    *Metrics

	in       Inbound
	hydrated chan hydrationResult
	outbox   chan outbound
	done     chan struct{}
	doneOnce sync.Once

	typingMu sync.Mutex
	typing   map[string]*TypingIndicator

	listenersMu sync.RWMutex
	listeners   []func(domain.ViewUpdate)
}

// EngineDeps collaborators of a MessageSyncEngine
type EngineDeps struct {
	Feed        ChangeFeed
	Broadcaster Broadcaster
	Persistence Persistence
	// Users optional fetcher used for hydration, defaults to Persistence
	Users   UserFetcher
	Clock   Clock
	Metrics *Metrics
}

// NewMessageSyncEngine build an engine acting as self in workspaceID
func NewMessageSyncEngine(cfg config.EngineConfig, self domain.UserRecord, workspaceID string, deps EngineDeps) *MessageSyncEngine {
	cfg = cfg.WithDefaults()
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Users == nil {
		deps.Users = deps.Persistence
	}

	store := NewMessageStore(NewGroupingEngine(cfg.GroupingGap))
	users := NewUserDirectory(deps.Users)
	if self.Status == "" {
		self.Status = domain.StatusOnline
	}
	users.Upsert(self)

	e := &MessageSyncEngine{
		cfg:         cfg,
		self:        self,
		workspaceID: workspaceID,
		clock:       deps.Clock,
		persist:     deps.Persistence,
		bc:          deps.Broadcaster,
		store:       store,
		users:       users,
		reconciler:  NewReconciler(store, users, cfg.OptimisticMatchWindow, deps.Metrics),
		presence:    NewPresenceIndex(users, cfg.PresenceTTL),
		reactions:   NewReactionStore(store),
		pins:        NewPinStore(store),
		bookmarks:   NewBookmarkStore(),
		registry:    NewChannelRegistry(),
		metrics:     deps.Metrics,
		in:          NewInbound(inboundBuffer),
		hydrated:    make(chan hydrationResult, inboundBuffer),
		outbox:      make(chan outbound, outboxBuffer),
		done:        make(chan struct{}),
		typing:      make(map[string]*TypingIndicator),
	}
	e.subs = NewSubscriptionManager(deps.Feed, deps.Broadcaster, e.reconciler, e.in, deps.Metrics, cfg.ReconnectMaxElapsed)
	e.reconciler.OnChange(e.notify)
	e.reconciler.OnHydrationNeeded(e.requestHydration)
	e.subs.OnOpened(e.loadChannel)
	e.subs.OnClosed(e.channelClosed)
	return e
}

// Run the event loop; returns when ctx is cancelled
func (e *MessageSyncEngine) Run(ctx context.Context) error {
	e.subs.Start(ctx)
	defer e.doneOnce.Do(func() { close(e.done) })
	defer e.subs.CloseAll()

	go e.publishLoop(ctx)

	heartbeat := time.NewTicker(e.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	logger.Log.Info("sync engine started", zap.String("user_id", e.self.ID), zap.String("workspace_id", e.workspaceID))
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("sync engine stopped")
			return ctx.Err()
		case evt := <-e.in.Feed:
			e.applyChange(evt)
		case evt := <-e.in.Pins:
			e.applyPin(evt)
		case evt := <-e.in.Typing:
			e.applyTyping(evt)
		case evt := <-e.in.Presence:
			e.applyPresence(evt)
		case r := <-e.hydrated:
			e.applyHydration(r)
		case <-heartbeat.C:
			e.Heartbeat()
		}
	}
}

func (e *MessageSyncEngine) applyChange(evt domain.ChangeEvent) {
	if !e.reconciler.Apply(evt) {
		return
	}
	if evt.Operation == domain.OpInsert {
		e.registry.Touch(evt.Row.ChannelID, evt.Row.CreatedAt)
	}
}

func (e *MessageSyncEngine) applyPin(evt domain.PinnedMessageEvent) {
	if e.pins.Apply(evt) {
		e.notify(domain.ViewUpdate{ChannelID: evt.Message.ChannelID, Kind: domain.ViewPins})
		e.notify(domain.ViewUpdate{ChannelID: evt.Message.ChannelID, Kind: domain.ViewMessages})
	}
}

func (e *MessageSyncEngine) applyTyping(evt domain.TypingIndicatorEvent) {
	// our own broadcast echoed back
	if evt.User.ID == e.self.ID {
		return
	}
	changed, known := e.presence.ApplyTyping(evt, e.clock.Now())
	if !known {
		// the payload is not a profile; the next burst lands once hydrated
		e.requestHydration(evt.User.ID)
		return
	}
	if changed {
		e.notify(domain.ViewUpdate{ChannelID: evt.ActiveChannelID, Kind: domain.ViewPresence})
	}
}

func (e *MessageSyncEngine) applyPresence(evt domain.PresenceEvent) {
	changed, known := e.presence.ApplyPresence(evt)
	if !known {
		e.requestHydration(evt.UserID)
		return
	}
	if changed {
		e.notify(domain.ViewUpdate{ChannelID: evt.ChannelID, Kind: domain.ViewPresence})
	}
}

func (e *MessageSyncEngine) applyHydration(r hydrationResult) {
	if r.err != nil {
		e.reconciler.HydrationFailed(r.userID, r.err)
		return
	}
	e.reconciler.ApplyHydrated(r.user)
	for _, channelID := range e.subs.Active() {
		e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewPresence})
	}
}

// requestHydration fetch a user off the loop and post the result back to it
func (e *MessageSyncEngine) requestHydration(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
		defer cancel()
		u, err := e.users.Hydrate(ctx, userID)
		select {
		case e.hydrated <- hydrationResult{userID: userID, user: u, err: err}:
		case <-e.done:
		}
	}()
}

// Heartbeat re-announce ourselves on every open channel and expire silent users
func (e *MessageSyncEngine) Heartbeat() {
	now := e.clock.Now()
	for _, channelID := range e.subs.Active() {
		evt := domain.PresenceEvent{ChannelID: channelID, UserID: e.self.ID, Status: domain.StatusOnline, At: now}
		e.applyPresence(evt)
		e.enqueue(channelID, domain.EventPresence, evt)
	}
	for _, channelID := range e.presence.Expire(now) {
		e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewPresence})
	}
}

// publishLoop single writer so broadcasts leave in the order they were made
func (e *MessageSyncEngine) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-e.outbox:
			if err := e.bc.Publish(ctx, o.channelID, o.kind, o.payload); err != nil {
				logger.Log.Warn("broadcast publish failed", zap.String("channel_id", o.channelID),
					zap.String("event", string(o.kind)), zap.Error(err))
			}
		}
	}
}

func (e *MessageSyncEngine) enqueue(channelID string, kind domain.BroadcastKind, payload interface{}) {
	select {
	case e.outbox <- outbound{channelID: channelID, kind: kind, payload: payload}:
	default:
		logger.Log.Warn("broadcast outbox full, event dropped", zap.String("channel_id", channelID), zap.String("event", string(kind)))
	}
}

// OnChange register a view update listener
func (e *MessageSyncEngine) OnChange(fn func(domain.ViewUpdate)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *MessageSyncEngine) notify(u domain.ViewUpdate) {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	for _, fn := range e.listeners {
		fn(u)
	}
}

// OpenChannel focus the channel bound to headingID, closing the previous one
func (e *MessageSyncEngine) OpenChannel(ctx context.Context, headingID string) (domain.Channel, error) {
	ch := e.registry.Register(headingID, e.workspaceID)
	if err := e.subs.Switch(ctx, ch.ID); err != nil {
		return ch, err
	}
	return ch, nil
}

// CloseChannel drop a channel's subscriptions and cached state
func (e *MessageSyncEngine) CloseChannel(channelID string) {
	e.subs.Close(channelID)
}

// OrphanHeading the heading was deleted; its channel is closed and marked orphaned
func (e *MessageSyncEngine) OrphanHeading(headingID string) {
	ch, ok := e.registry.ChannelFor(headingID)
	if !ok {
		return
	}
	e.registry.Orphan(headingID)
	e.subs.Close(ch.ID)
}

// SetOnline network connectivity changed
func (e *MessageSyncEngine) SetOnline(ctx context.Context, online bool) error {
	if !online {
		e.subs.GoOffline()
		return nil
	}
	return e.subs.GoOnline(ctx)
}

// SetVisible tab visibility changed; placeholders are retried on show
func (e *MessageSyncEngine) SetVisible(ctx context.Context, visible bool) error {
	if !visible {
		e.subs.Hide()
		return nil
	}
	if err := e.subs.Show(ctx); err != nil {
		return err
	}
	if focused := e.subs.Focused(); focused != "" {
		e.reconciler.RetryUnknownUsers(focused)
	}
	return nil
}

// loadChannel fresh history page and pins for a just subscribed channel
func (e *MessageSyncEngine) loadChannel(ctx context.Context, channelID string) {
	if _, err := e.LoadHistory(ctx, channelID); err != nil {
		logger.Log.Warn("initial history load failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	if err := e.LoadPins(ctx, channelID); err != nil {
		logger.Log.Warn("pin load failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// channelClosed events for a closed channel are dropped, so its cache goes stale
func (e *MessageSyncEngine) channelClosed(channelID string) {
	e.typingMu.Lock()
	if t, ok := e.typing[channelID]; ok {
		t.Close()
		delete(e.typing, channelID)
	}
	e.typingMu.Unlock()

	e.store.Clear(channelID)
	e.reconciler.Forget(channelID)
	e.pins.Clear(channelID)
	e.presence.Clear(channelID)
	e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
}

func (e *MessageSyncEngine) reject(action, channelID, messageID string, err error) error {
	e.metrics.rejected(action)
	logger.Log.Error("write rejected, rolled back", zap.String("action", action),
		zap.String("channel_id", channelID), zap.String("message_id", messageID), zap.Error(err))
	return &domain.WriteRejectedError{
		Action:    action,
		ChannelID: channelID,
		MessageID: messageID,
		Err:       errprocess.New(errprocess.KindWriteRejected, action, err),
	}
}

// SendMessage show the message at once under a temp id; the authoritative row
// replaces it in place whether it arrives through the feed or the write response
func (e *MessageSyncEngine) SendMessage(ctx context.Context, channelID, content string, replyTo *string) (domain.Message, error) {
	now := e.clock.Now()
	tempID := domain.TempIDPrefix + uuid.NewString()
	self := e.self

	msg := domain.Message{
		ID:               tempID,
		ChannelID:        channelID,
		UserID:           self.ID,
		Content:          content,
		CreatedAt:        now,
		ReplyToMessageID: replyTo,
		User:             &self,
		Pending:          true,
	}
	if msg.IsReply() {
		msg.RepliedMessage = e.reconciler.resolveReply(channelID, *replyTo)
	}

	e.reconciler.AddPending(domain.PendingOptimisticMessage{
		TempID: tempID, ChannelID: channelID, UserID: self.ID, Content: content, CreatedAt: now,
	})
	e.store.Upsert(channelID, msg)
	e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
	e.stopTyping(channelID)

	row, err := e.persist.InsertMessage(ctx, domain.Message{
		ChannelID:        channelID,
		UserID:           self.ID,
		Content:          content,
		CreatedAt:        now,
		ReplyToMessageID: replyTo,
	})
	if err != nil {
		e.reconciler.DropPending(channelID, tempID)
		e.store.Remove(channelID, tempID)
		e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
		return domain.Message{}, e.reject("sendMessage", channelID, tempID, err)
	}

	// still pending: the feed has not delivered the row yet (or never will)
	if e.reconciler.DropPending(channelID, tempID) {
		if e.store.Replace(channelID, tempID, e.reconciler.decorate(channelID, row)) {
			e.metrics.reconciled()
		}
		e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
	}
	e.registry.Touch(channelID, row.CreatedAt)
	if stored, ok := e.store.Find(channelID, row.ID); ok {
		return stored, nil
	}
	return row, nil
}

// ToggleReaction flip our reaction; a failed write is undone by toggling back
func (e *MessageSyncEngine) ToggleReaction(ctx context.Context, channelID, messageID, key string) (domain.Reactions, error) {
	added, ok := e.reactions.Toggle(channelID, messageID, key, e.self.ID, e.clock.Now())
	if !ok {
		return nil, errprocess.New(errprocess.KindDataIntegrity, "toggleReaction", domain.ErrNotFound)
	}
	e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})

	server, err := e.persist.EmojiReaction(ctx, messageID, key, e.self.ID)
	if err != nil {
		// inverse op, so feed updates applied meanwhile survive
		if cur, ok := e.reactions.Get(channelID, messageID); ok && cur.Has(key, e.self.ID) == added {
			e.reactions.Toggle(channelID, messageID, key, e.self.ID, e.clock.Now())
		}
		e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
		return nil, e.reject("toggleReaction", channelID, messageID, err)
	}
	e.reactions.Set(channelID, messageID, server)
	e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
	r, _ := e.reactions.Get(channelID, messageID)
	return r, nil
}

// PinMessage pin or unpin, then tell the other clients
func (e *MessageSyncEngine) PinMessage(ctx context.Context, channelID, messageID string, pin bool) error {
	msg, ok := e.store.Find(channelID, messageID)
	if !ok {
		return errprocess.New(errprocess.KindDataIntegrity, "pinMessage", domain.ErrNotFound)
	}
	action, inverse := domain.ActionPin, domain.ActionUnpin
	if !pin {
		action, inverse = domain.ActionUnpin, domain.ActionPin
	}
	evt := domain.PinnedMessageEvent{ActionType: action, Message: msg, ActorID: e.self.ID, At: e.clock.Now()}
	e.applyPin(evt)

	if err := e.persist.SetPinned(ctx, channelID, messageID, pin, e.self.ID); err != nil {
		evt.ActionType = inverse
		e.applyPin(evt)
		return e.reject("pinMessage", channelID, messageID, err)
	}
	e.enqueue(channelID, domain.EventPinnedMessage, domain.PinnedMessageEvent{ActionType: action, Message: msg, ActorID: e.self.ID, At: evt.At})
	return nil
}

// LoadPins replace a channel's pins with the persisted ones
func (e *MessageSyncEngine) LoadPins(ctx context.Context, channelID string) error {
	entries, err := e.persist.ListPinned(ctx, channelID)
	if err != nil {
		return errprocess.New(errprocess.KindTransientNetwork, "loadPins", err)
	}
	e.pins.Load(channelID, entries)
	e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewPins})
	return nil
}

// BookmarkMessage add or remove our bookmark
func (e *MessageSyncEngine) BookmarkMessage(ctx context.Context, channelID, messageID string, add bool) error {
	if !add {
		prev, had := e.bookmarks.Remove(messageID)
		e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewBookmarks})
		if err := e.persist.RemoveBookmark(ctx, e.self.ID, messageID); err != nil {
			if had {
				e.bookmarks.Add(prev)
			}
			e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewBookmarks})
			return e.reject("bookmarkMessage", channelID, messageID, err)
		}
		return nil
	}

	entry := domain.AggregateEntry{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		MessageID: messageID,
		ActorID:   e.self.ID,
		CreatedAt: e.clock.Now(),
	}
	if msg, ok := e.store.Find(channelID, messageID); ok {
		entry.Message = &msg
	}
	if !e.bookmarks.Add(entry) {
		return nil
	}
	e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewBookmarks})
	if _, err := e.persist.AddBookmark(ctx, entry); err != nil {
		e.bookmarks.Remove(messageID)
		e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewBookmarks})
		return e.reject("bookmarkMessage", channelID, messageID, err)
	}
	return nil
}

// DeleteMessage remove at once; a failed write puts the message back where it was
func (e *MessageSyncEngine) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	removed, prevID, ok := e.store.Remove(channelID, messageID)
	if !ok {
		return errprocess.New(errprocess.KindDataIntegrity, "deleteMessage", domain.ErrNotFound)
	}
	e.reconciler.ExpectRemoval(channelID, messageID)
	e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})

	if err := e.persist.DeleteMessage(ctx, messageID); err != nil {
		e.reconciler.ForgetRemoval(channelID, messageID)
		e.store.InsertAfter(channelID, prevID, removed)
		e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
		return e.reject("deleteMessage", channelID, messageID, err)
	}
	return nil
}

// LoadHistory fetch the page older than the oldest loaded message and splice it in
func (e *MessageSyncEngine) LoadHistory(ctx context.Context, channelID string) (int, error) {
	var before *time.Time
	if msgs := e.store.Get(channelID); len(msgs) > 0 {
		t := msgs[0].CreatedAt
		before = &t
	}
	page, err := e.persist.ListMessages(ctx, channelID, before, e.cfg.HistoryPageSize)
	if err != nil {
		return 0, errprocess.New(errprocess.KindTransientNetwork, "loadHistory", err)
	}
	// oldest first so each reply target is in place before its replies
	decorated := make([]domain.Message, 0, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		if page[i].ChannelID == "" {
			page[i].ChannelID = channelID
		}
		decorated = append(decorated, page[i])
	}
	n := e.store.Backfill(channelID, decorated)
	// resolve once the whole page is in memory
	for _, m := range decorated {
		d := e.reconciler.decorate(channelID, m)
		e.store.Update(channelID, m.ID, func(stored *domain.Message) {
			if stored.User == nil || stored.UserPending {
				stored.User, stored.UserPending = d.User, d.UserPending
			}
			if stored.RepliedMessage == nil {
				stored.RepliedMessage = d.RepliedMessage
			}
		})
	}
	if n > 0 {
		e.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
	}
	return n, nil
}

// FetchBookmarks load one page of our bookmarks; limit <= 0 uses the history page size
func (e *MessageSyncEngine) FetchBookmarks(ctx context.Context, workspaceID string, archived *bool, limit, offset int) (domain.BookmarkPage, error) {
	if workspaceID == "" {
		workspaceID = e.workspaceID
	}
	if limit <= 0 {
		limit = e.cfg.HistoryPageSize
	}
	page, err := e.persist.GetUserBookmarks(ctx, workspaceID, e.self.ID, archived, limit, offset)
	if err != nil {
		return domain.BookmarkPage{}, errprocess.New(errprocess.KindTransientNetwork, "fetchBookmarks", err)
	}
	e.bookmarks.MergePage(offset, page)
	e.notify(domain.ViewUpdate{Kind: domain.ViewBookmarks})
	return page, nil
}

// FetchNextBookmarks continue from the last loaded page
func (e *MessageSyncEngine) FetchNextBookmarks(ctx context.Context, archived *bool) (domain.BookmarkPage, error) {
	offset, more := e.bookmarks.Cursor()
	if !more {
		return domain.BookmarkPage{}, nil
	}
	return e.FetchBookmarks(ctx, "", archived, 0, offset)
}

// Keypress local typing activity in channelID
func (e *MessageSyncEngine) Keypress(channelID string) error {
	if !e.subs.IsActive(channelID) {
		return errprocess.New(errprocess.KindUnknown, "keypress", domain.ErrChannelClosed)
	}
	e.typingFor(channelID).Keypress()
	return nil
}

func (e *MessageSyncEngine) typingFor(channelID string) *TypingIndicator {
	e.typingMu.Lock()
	defer e.typingMu.Unlock()
	t, ok := e.typing[channelID]
	if !ok {
		t = NewTypingIndicator(e.clock, e.cfg.TypingDebounce, channelID, e.self, func(evt domain.TypingIndicatorEvent) {
			e.enqueue(channelID, domain.EventTypingIndicator, evt)
		})
		e.typing[channelID] = t
	}
	return t
}

func (e *MessageSyncEngine) stopTyping(channelID string) {
	e.typingMu.Lock()
	t, ok := e.typing[channelID]
	e.typingMu.Unlock()
	if ok {
		t.Send()
	}
}

// Messages read model of a channel in display order
func (e *MessageSyncEngine) Messages(channelID string) []domain.Message {
	return e.store.Get(channelID)
}

// LastMessage newest message of a channel
func (e *MessageSyncEngine) LastMessage(channelID string) (domain.Message, bool) {
	return e.store.LastMessage(channelID)
}

// Online known users online in a channel
func (e *MessageSyncEngine) Online(channelID string) []domain.UserRecord {
	return e.presence.Online(channelID)
}

// Typing known users typing in a channel
func (e *MessageSyncEngine) Typing(channelID string) []domain.UserRecord {
	return e.presence.Typing(channelID)
}

// Pins pinned messages of a channel
func (e *MessageSyncEngine) Pins(channelID string) []domain.AggregateEntry {
	return e.pins.List(channelID)
}

// Bookmarks loaded bookmarks, optionally filtered on archived
func (e *MessageSyncEngine) Bookmarks(archived *bool) []domain.AggregateEntry {
	return e.bookmarks.List(archived)
}

// ChannelState subscription state of a channel
func (e *MessageSyncEngine) ChannelState(channelID string) domain.SubscriptionState {
	return e.reconciler.State(channelID)
}

// Channel channel bound to a heading
func (e *MessageSyncEngine) Channel(headingID string) (domain.Channel, bool) {
	return e.registry.ChannelFor(headingID)
}

// Focused channel currently open in the UI
func (e *MessageSyncEngine) Focused() string {
	return e.subs.Focused()
}

// Self acting user
func (e *MessageSyncEngine) Self() domain.UserRecord {
	return e.self
}

// IsWriteRejected err came from a rolled back action
func IsWriteRejected(err error) (*domain.WriteRejectedError, bool) {
	var wr *domain.WriteRejectedError
	if errors.As(err, &wr) {
		return wr, true
	}
	return nil, false
}
