package app

import (
	"sort"
	"sync"
	"time"

	"channel_sync_service/internal/channel/domain"
)

type presenceEntry struct {
	status   domain.PresenceStatus
	lastSeen time.Time
}

// PresenceIndex who is online / typing in which channel. Fed only by
// ephemeral broadcasts and our own heartbeat; nothing here is persisted.
// Profile status goes to the UserDirectory as a patch, never as a new record.
type PresenceIndex struct {
	mu       sync.RWMutex
	channels map[string]map[string]presenceEntry
	users    *UserDirectory
	ttl      time.Duration
}

// NewPresenceIndex entries not refreshed within ttl expire
func NewPresenceIndex(users *UserDirectory, ttl time.Duration) *PresenceIndex {
	return &PresenceIndex{
		channels: make(map[string]map[string]presenceEntry),
		users:    users,
		ttl:      ttl,
	}
}

func (p *PresenceIndex) set(channelID, userID string, status domain.PresenceStatus, at time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.channels[channelID]
	if !ok {
		c = make(map[string]presenceEntry)
		p.channels[channelID] = c
	}
	prev, had := c[userID]
	if status == domain.StatusOffline {
		delete(c, userID)
		return had
	}
	c[userID] = presenceEntry{status: status, lastSeen: at}
	return !had || prev.status != status
}

// ApplyPresence heartbeat or leave. Returns whether the read model changed and
// whether the user is known to the directory.
func (p *PresenceIndex) ApplyPresence(evt domain.PresenceEvent) (changed, known bool) {
	changed = p.set(evt.ChannelID, evt.UserID, evt.Status, evt.At)
	known = p.users.PatchStatus(evt.UserID, evt.Status)
	return changed, known
}

// ApplyTyping start/stop typing broadcast
func (p *PresenceIndex) ApplyTyping(evt domain.TypingIndicatorEvent, at time.Time) (changed, known bool) {
	status := domain.StatusOnline
	if evt.Type == domain.StartTyping {
		status = domain.StatusTyping
	}
	changed = p.set(evt.ActiveChannelID, evt.User.ID, status, at)
	known = p.users.PatchStatus(evt.User.ID, status)
	return changed, known
}

// Expire drop entries older than ttl; returns channels that changed
func (p *PresenceIndex) Expire(now time.Time) []string {
	p.mu.Lock()
	var changed []string
	var gone []string
	for channelID, c := range p.channels {
		touched := false
		for userID, e := range c {
			if now.Sub(e.lastSeen) > p.ttl {
				delete(c, userID)
				gone = append(gone, userID)
				touched = true
			}
		}
		if touched {
			changed = append(changed, channelID)
		}
	}
	p.mu.Unlock()

	for _, userID := range gone {
		if !p.seenAnywhere(userID) {
			p.users.PatchStatus(userID, domain.StatusOffline)
		}
	}
	sort.Strings(changed)
	return changed
}

func (p *PresenceIndex) seenAnywhere(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.channels {
		if _, ok := c[userID]; ok {
			return true
		}
	}
	return false
}

// Clear forget a channel (unsubscribed)
func (p *PresenceIndex) Clear(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, channelID)
}

func (p *PresenceIndex) collect(channelID string, match func(domain.PresenceStatus) bool) []domain.UserRecord {
	p.mu.RLock()
	statuses := make(map[string]domain.PresenceStatus, len(p.channels[channelID]))
	ids := make([]string, 0, len(p.channels[channelID]))
	for userID, e := range p.channels[channelID] {
		if match(e.status) {
			ids = append(ids, userID)
			statuses[userID] = e.status
		}
	}
	p.mu.RUnlock()

	sort.Strings(ids)
	out := make([]domain.UserRecord, 0, len(ids))
	for _, id := range ids {
		// unknown users stay invisible until hydrated
		if u, ok := p.users.Lookup(id); ok {
			u.Status = statuses[id]
			out = append(out, u)
		}
	}
	return out
}

// Online users present in a channel (typing counts as online)
func (p *PresenceIndex) Online(channelID string) []domain.UserRecord {
	return p.collect(channelID, func(s domain.PresenceStatus) bool {
		return s == domain.StatusOnline || s == domain.StatusTyping
	})
}

// Typing users typing in a channel
func (p *PresenceIndex) Typing(channelID string) []domain.UserRecord {
	return p.collect(channelID, func(s domain.PresenceStatus) bool {
		return s == domain.StatusTyping
	})
}
