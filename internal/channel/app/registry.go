package app

import (
	"sync"
	"time"

	"channel_sync_service/internal/channel/domain"
)

// ChannelRegistry heading id <-> channel id. The channel id is the heading id;
// the registry exists for the reverse lookup and to remember orphaned channels.
type ChannelRegistry struct {
	mu        sync.RWMutex
	byHeading map[string]*domain.Channel
	byChannel map[string]*domain.Channel
}

// NewChannelRegistry create a ChannelRegistry
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		byHeading: make(map[string]*domain.Channel),
		byChannel: make(map[string]*domain.Channel),
	}
}

// Register bind a heading to its channel (idempotent)
func (r *ChannelRegistry) Register(headingID, workspaceID string) domain.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byHeading[headingID]; ok {
		c.Orphaned = false
		return *c
	}
	c := &domain.Channel{ID: headingID, HeadingID: headingID, WorkspaceID: workspaceID}
	r.byHeading[headingID] = c
	r.byChannel[c.ID] = c
	return *c
}

// ChannelFor channel of a heading
func (r *ChannelRegistry) ChannelFor(headingID string) (domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byHeading[headingID]
	if !ok {
		return domain.Channel{}, false
	}
	return *c, true
}

// HeadingFor reverse lookup
func (r *ChannelRegistry) HeadingFor(channelID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byChannel[channelID]
	if !ok {
		return "", false
	}
	return c.HeadingID, true
}

// Orphan heading was deleted from the document; messages stay
func (r *ChannelRegistry) Orphan(headingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byHeading[headingID]
	if !ok {
		return false
	}
	c.Orphaned = true
	return true
}

// Touch bump last activity
func (r *ChannelRegistry) Touch(channelID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byChannel[channelID]; ok && at.After(c.LastActivityAt) {
		c.LastActivityAt = at
	}
}
