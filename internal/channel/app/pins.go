package app

import (
	"sync"

	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/orderedmap"
)

// PinStore pinned messages per channel. Live changes arrive as pinnedMessage
// broadcasts; the pinned metadata flag on the row is what a reload trusts.
type PinStore struct {
	mu       sync.RWMutex
	channels map[string]*orderedmap.Map[string, domain.AggregateEntry]
	store    *MessageStore
}

// NewPinStore create a PinStore
func NewPinStore(store *MessageStore) *PinStore {
	return &PinStore{
		channels: make(map[string]*orderedmap.Map[string, domain.AggregateEntry]),
		store:    store,
	}
}

// Apply a pin/unpin; reports whether anything changed
func (p *PinStore) Apply(evt domain.PinnedMessageEvent) bool {
	msg := evt.Message
	pinned := evt.ActionType == domain.ActionPin

	p.mu.Lock()
	c, ok := p.channels[msg.ChannelID]
	if !ok {
		c = orderedmap.New[string, domain.AggregateEntry]()
		p.channels[msg.ChannelID] = c
	}
	changed := false
	if pinned {
		if !c.Has(msg.ID) {
			m := msg.Clone()
			m.SetPinned(true)
			c.Set(msg.ID, domain.AggregateEntry{
				ChannelID: msg.ChannelID, MessageID: msg.ID, ActorID: evt.ActorID, CreatedAt: evt.At, Message: &m,
			})
			changed = true
		}
	} else if c.Delete(msg.ID) >= 0 {
		changed = true
	}
	p.mu.Unlock()

	// keep the flag on the live message in step
	p.store.Update(msg.ChannelID, msg.ID, func(m *domain.Message) {
		if m.IsPinned() != pinned {
			m.SetPinned(pinned)
			changed = true
		}
	})
	return changed
}

// Load replace a channel's pins with the persisted ones
func (p *PinStore) Load(channelID string, entries []domain.AggregateEntry) {
	c := orderedmap.New[string, domain.AggregateEntry]()
	for _, e := range entries {
		c.Set(e.MessageID, e)
	}
	p.mu.Lock()
	p.channels[channelID] = c
	p.mu.Unlock()
}

// IsPinned message currently pinned
func (p *PinStore) IsPinned(channelID, messageID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.channels[channelID]
	return ok && c.Has(messageID)
}

// List pins of a channel in pin order
func (p *PinStore) List(channelID string) []domain.AggregateEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.channels[channelID]
	if !ok {
		return nil
	}
	return c.Values()
}

// Clear forget a channel
func (p *PinStore) Clear(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, channelID)
}
