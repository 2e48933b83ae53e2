package app

import (
	"strings"
	"sync"
	"time"

	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// Reconciler applies change-feed events to the MessageStore.
// Per channel it tracks the subscription state; events for a channel that is
// not SUBSCRIBED are stale and dropped.
type Reconciler struct {
	mu      sync.Mutex
	states  map[string]domain.SubscriptionState
	pending map[string][]domain.PendingOptimisticMessage
	// removals we made ourselves; their feed echo is not an anomaly
	expected map[string]bool

	store       *MessageStore
	users       *UserDirectory
	matchWindow time.Duration
	metrics     *Metrics

	// requestHydration is called on a user cache miss; it must not block
	requestHydration func(userID string)
	notify           func(domain.ViewUpdate)
}

// NewReconciler create a Reconciler
func NewReconciler(store *MessageStore, users *UserDirectory, matchWindow time.Duration, metrics *Metrics) *Reconciler {
	return &Reconciler{
		states:           make(map[string]domain.SubscriptionState),
		pending:          make(map[string][]domain.PendingOptimisticMessage),
		expected:         make(map[string]bool),
		store:            store,
		users:            users,
		matchWindow:      matchWindow,
		metrics:          metrics,
		requestHydration: func(string) {},
		notify:           func(domain.ViewUpdate) {},
	}
}

// OnHydrationNeeded set the cache-miss hook
func (r *Reconciler) OnHydrationNeeded(fn func(userID string)) {
	r.requestHydration = fn
}

// OnChange set the view update hook
func (r *Reconciler) OnChange(fn func(domain.ViewUpdate)) {
	r.notify = fn
}

// SetState move a channel's subscription state
func (r *Reconciler) SetState(channelID string, st domain.SubscriptionState) {
	r.mu.Lock()
	prev := r.states[channelID]
	if st == domain.StateUnsubscribed {
		delete(r.states, channelID)
	} else {
		r.states[channelID] = st
	}
	r.mu.Unlock()

	if prev != st {
		logger.Log.Debug("subscription state", zap.String("channel_id", channelID),
			zap.String("from", string(prev)), zap.String("to", string(st)))
		r.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewSubscription})
	}
}

// State current subscription state of a channel
func (r *Reconciler) State(channelID string) domain.SubscriptionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[channelID]; ok {
		return st
	}
	return domain.StateUnsubscribed
}

// AddPending remember an optimistic message until its row arrives
func (r *Reconciler) AddPending(p domain.PendingOptimisticMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[p.ChannelID] = append(r.pending[p.ChannelID], p)
}

// DropPending forget an optimistic message (send failed); reports whether it was still pending
func (r *Reconciler) DropPending(channelID, tempID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.pending[channelID]
	for i, p := range list {
		if p.TempID == tempID {
			r.pending[channelID] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// PendingCount optimistic messages still waiting in a channel
func (r *Reconciler) PendingCount(channelID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[channelID])
}

// ExpectRemoval a local delete is in flight for messageID
func (r *Reconciler) ExpectRemoval(channelID, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expected[channelID+"/"+messageID] = true
}

// ForgetRemoval the local delete was rolled back
func (r *Reconciler) ForgetRemoval(channelID, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expected, channelID+"/"+messageID)
}

// Forget drop the optimistic and removal bookkeeping of a closed channel
func (r *Reconciler) Forget(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, channelID)
	prefix := channelID + "/"
	for key := range r.expected {
		if strings.HasPrefix(key, prefix) {
			delete(r.expected, key)
		}
	}
}

func (r *Reconciler) takeExpected(channelID, messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := channelID + "/" + messageID
	ok := r.expected[key]
	delete(r.expected, key)
	return ok
}

// takePending oldest pending message matching row
func (r *Reconciler) takePending(row domain.Message) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.pending[row.ChannelID]
	for i, p := range list {
		if p.Matches(row, r.matchWindow) {
			r.pending[row.ChannelID] = append(list[:i], list[i+1:]...)
			return p.TempID, true
		}
	}
	return "", false
}

// begin SUBSCRIBED -> RECONCILING; false when the channel is not live
func (r *Reconciler) begin(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states[channelID] != domain.StateSubscribed {
		return false
	}
	r.states[channelID] = domain.StateReconciling
	return true
}

func (r *Reconciler) end(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// teardown during apply wins
	if r.states[channelID] == domain.StateReconciling {
		r.states[channelID] = domain.StateSubscribed
	}
}

// Apply one change-feed event; reports whether the store changed
func (r *Reconciler) Apply(evt domain.ChangeEvent) bool {
	if evt.Table != "" && evt.Table != domain.MessagesTable {
		return false
	}
	channelID := evt.ChannelFilter
	if channelID == "" {
		channelID = evt.Row.ChannelID
	}
	if evt.Row.ChannelID == "" {
		evt.Row.ChannelID = channelID
	}
	if !r.begin(channelID) {
		logger.Log.Debug("event for inactive channel dropped",
			zap.String("channel_id", channelID), zap.String("operation", string(evt.Operation)))
		return false
	}
	defer r.end(channelID)

	r.metrics.feedEvent(string(evt.Operation))

	var changed bool
	switch evt.Operation {
	case domain.OpInsert:
		changed = r.applyInsert(channelID, evt.Row)
	case domain.OpUpdate:
		changed = r.applyUpdate(channelID, evt.Row)
	case domain.OpDelete:
		changed = r.applyRemove(channelID, evt.Row.ID, "delete")
	default:
		logger.Log.Warn("unknown change-feed operation", zap.String("operation", string(evt.Operation)))
	}
	if changed {
		r.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
	}
	return changed
}

func (r *Reconciler) applyInsert(channelID string, row domain.Message) bool {
	// deleted between write and delivery
	if row.IsDeleted() {
		return false
	}
	if tempID, ok := r.takePending(row); ok {
		msg := r.decorate(channelID, row)
		if r.store.Replace(channelID, tempID, msg) {
			r.metrics.reconciled()
			logger.Log.Debug("optimistic message reconciled",
				zap.String("channel_id", channelID), zap.String("temp_id", tempID), zap.String("message_id", row.ID))
			return true
		}
	}
	if _, exists := r.store.Find(channelID, row.ID); exists {
		return false
	}
	r.store.Upsert(channelID, r.decorate(channelID, row))
	return true
}

func (r *Reconciler) applyUpdate(channelID string, row domain.Message) bool {
	existing, ok := r.store.Find(channelID, row.ID)
	if !ok {
		if row.IsDeleted() && r.takeExpected(channelID, row.ID) {
			return false
		}
		r.metrics.anomaly()
		logger.Log.Warn("update for unknown message ignored",
			zap.String("channel_id", channelID), zap.String("message_id", row.ID))
		return false
	}
	if row.IsDeleted() {
		return r.applyRemove(channelID, row.ID, "soft delete")
	}

	var preview *domain.ReplyPreview
	if row.IsReply() {
		preview = r.resolveReply(channelID, *row.ReplyToMessageID)
		if preview == nil && existing.IsReply() && *existing.ReplyToMessageID == *row.ReplyToMessageID {
			preview = existing.RepliedMessage
		}
	}
	var user *domain.UserRecord
	pendingUser := existing.UserPending
	if row.UserID != "" && row.UserID != existing.UserID {
		user, pendingUser = r.resolveUser(row.UserID)
	}

	return r.store.Update(channelID, row.ID, func(m *domain.Message) {
		m.MergeFrom(row)
		m.RepliedMessage = preview
		if user != nil {
			m.User = user
			m.UserPending = pendingUser
		}
	})
}

func (r *Reconciler) applyRemove(channelID, messageID, why string) bool {
	if _, _, ok := r.store.Remove(channelID, messageID); !ok {
		if r.takeExpected(channelID, messageID) {
			return false
		}
		r.metrics.anomaly()
		logger.Log.Warn("removal of unknown message ignored", zap.String("channel_id", channelID),
			zap.String("message_id", messageID), zap.String("cause", why))
		return false
	}
	return true
}

// decorate attach user details and the reply preview to a fresh row
func (r *Reconciler) decorate(channelID string, row domain.Message) domain.Message {
	msg := row
	msg.Pending = false
	msg.GroupedWithPrevious = false
	msg.User, msg.UserPending = r.resolveUser(row.UserID)
	msg.RepliedMessage = nil
	if row.IsReply() {
		msg.RepliedMessage = r.resolveReply(channelID, *row.ReplyToMessageID)
	}
	return msg
}

// resolveUser cache hit, or placeholder plus an async hydration request
func (r *Reconciler) resolveUser(userID string) (*domain.UserRecord, bool) {
	if u, ok := r.users.Lookup(userID); ok {
		return &u, false
	}
	r.requestHydration(userID)
	return domain.PlaceholderUser(userID), true
}

// resolveReply from memory only; a target that is not loaded stays nil
func (r *Reconciler) resolveReply(channelID, replyID string) *domain.ReplyPreview {
	target, ok := r.store.Find(channelID, replyID)
	if !ok {
		return nil
	}
	return target.Preview()
}

// ApplyHydrated patch every message of a freshly hydrated user in place
func (r *Reconciler) ApplyHydrated(u domain.UserRecord) {
	changed := r.store.UpdateWhere(func(m *domain.Message) bool {
		if m.UserID != u.ID || (!m.UserPending && m.User != nil && *m.User == u) {
			return false
		}
		cp := u
		m.User = &cp
		m.UserPending = false
		return true
	})
	for _, channelID := range changed {
		r.notify(domain.ViewUpdate{ChannelID: channelID, Kind: domain.ViewMessages})
	}
}

// HydrationFailed count a failed fetch; the placeholder stays until RetryUnknownUsers
func (r *Reconciler) HydrationFailed(userID string, err error) {
	r.metrics.hydrationFailed()
	logger.Log.Warn("user details unavailable, rendering placeholder",
		zap.String("user_id", userID), zap.Error(err))
}

// RetryUnknownUsers re-request hydration for every placeholder user in a channel
func (r *Reconciler) RetryUnknownUsers(channelID string) int {
	seen := map[string]bool{}
	for _, m := range r.store.Get(channelID) {
		if m.UserPending && !seen[m.UserID] {
			seen[m.UserID] = true
			r.requestHydration(m.UserID)
		}
	}
	return len(seen)
}
