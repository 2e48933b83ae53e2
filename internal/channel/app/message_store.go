package app

import (
	"sync"

	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/orderedmap"
)

// MessageStore one arrival-ordered collection per channel (channel id -> message id -> message).
// It never re-sorts: new ids go to the tail, existing ids are replaced in place and
// history pages are spliced in next to their neighbor. Every mutation regroups the
// window around the mutation point; the last message is always the tail entry.
type MessageStore struct {
	mu       sync.RWMutex
	channels map[string]*orderedmap.Map[string, *domain.Message]
	grouping *GroupingEngine
}

// NewMessageStore create a MessageStore
func NewMessageStore(grouping *GroupingEngine) *MessageStore {
	return &MessageStore{
		channels: make(map[string]*orderedmap.Map[string, *domain.Message]),
		grouping: grouping,
	}
}

func (s *MessageStore) channel(channelID string) *orderedmap.Map[string, *domain.Message] {
	c, ok := s.channels[channelID]
	if !ok {
		c = orderedmap.New[string, *domain.Message]()
		s.channels[channelID] = c
	}
	return c
}

// Get messages of a channel in arrival order
func (s *MessageStore) Get(channelID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.channels[channelID]
	if !ok {
		return nil
	}
	out := make([]domain.Message, 0, c.Len())
	for _, m := range c.Values() {
		out = append(out, m.Clone())
	}
	return out
}

// Find one message
func (s *MessageStore) Find(channelID, messageID string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.channels[channelID]
	if !ok {
		return domain.Message{}, false
	}
	m, ok := c.Get(messageID)
	if !ok {
		return domain.Message{}, false
	}
	return m.Clone(), true
}

// Len number of messages in a channel
func (s *MessageStore) Len(channelID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.channels[channelID]; ok {
		return c.Len()
	}
	return 0
}

// LastMessage tail of the channel
func (s *MessageStore) LastMessage(channelID string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.channels[channelID]
	if !ok {
		return domain.Message{}, false
	}
	_, m, ok := c.Last()
	if !ok {
		return domain.Message{}, false
	}
	return m.Clone(), true
}

// Upsert append a new message or replace an existing one in place; reports whether it was new
func (s *MessageStore) Upsert(channelID string, msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.channel(channelID)
	m := msg.Clone()
	i, isNew := c.Set(msg.ID, &m)
	s.regroupAt(c, i)
	return isNew
}

// Replace swap oldID for msg at the same position under one lock, so the old
// entry and its successor are never visible together
func (s *MessageStore) Replace(channelID, oldID string, msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[channelID]
	if !ok {
		return false
	}
	m := msg.Clone()
	if oldID != msg.ID && c.Has(msg.ID) {
		// authoritative row already landed, drop the placeholder
		i := c.Delete(oldID)
		if i < 0 {
			return false
		}
		s.regroupAfterDelete(c, i)
		return true
	}
	i, ok := c.Rekey(oldID, msg.ID, &m)
	if !ok {
		return false
	}
	s.regroupAt(c, i)
	return true
}

// Update mutate one message in place
func (s *MessageStore) Update(channelID, messageID string, fn func(*domain.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[channelID]
	if !ok {
		return false
	}
	m, ok := c.Get(messageID)
	if !ok {
		return false
	}
	fn(m)
	s.regroupAt(c, c.IndexOf(messageID))
	return true
}

// UpdateWhere mutate every message for which fn returns true, across channels.
// Returns the ids of channels that changed.
func (s *MessageStore) UpdateWhere(fn func(*domain.Message) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for id, c := range s.channels {
		touched := false
		for _, m := range c.Values() {
			if fn(m) {
				touched = true
			}
		}
		if touched {
			changed = append(changed, id)
		}
	}
	return changed
}

// Remove delete a message, returning it and the id of its predecessor ("" at head)
func (s *MessageStore) Remove(channelID, messageID string) (domain.Message, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[channelID]
	if !ok {
		return domain.Message{}, "", false
	}
	m, ok := c.Get(messageID)
	if !ok {
		return domain.Message{}, "", false
	}
	prevID := ""
	if i := c.IndexOf(messageID); i > 0 {
		prevID, _ = c.At(i - 1)
	}
	i := c.Delete(messageID)
	s.regroupAfterDelete(c, i)
	return m.Clone(), prevID, true
}

// InsertAfter put msg right after prevID ("" = head), used to undo a removal
func (s *MessageStore) InsertAfter(channelID, prevID string, msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.channel(channelID)
	pos := 0
	if prevID != "" {
		if j := c.IndexOf(prevID); j >= 0 {
			pos = j + 1
		} else {
			pos = c.Len()
		}
	}
	m := msg.Clone()
	i := c.InsertAt(pos, msg.ID, &m)
	s.regroupAt(c, i)
}

// Backfill splice an older page in. Each unknown message goes right before the
// first stored message created after it; known ids are skipped. Returns the
// number of messages added.
func (s *MessageStore) Backfill(channelID string, page []domain.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.channel(channelID)
	added := 0
	for _, msg := range page {
		if c.Has(msg.ID) || msg.IsDeleted() {
			continue
		}
		pos := c.Len()
		for j := 0; j < c.Len(); j++ {
			_, existing := c.At(j)
			if existing.CreatedAt.After(msg.CreatedAt) {
				pos = j
				break
			}
		}
		m := msg.Clone()
		i := c.InsertAt(pos, msg.ID, &m)
		s.regroupAt(c, i)
		added++
	}
	return added
}

// Clear drop a channel's messages
func (s *MessageStore) Clear(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
}

// regroupAt recompute predecessor, mutated entry and successor
func (s *MessageStore) regroupAt(c *orderedmap.Map[string, *domain.Message], i int) {
	if s.grouping == nil || i < 0 {
		return
	}
	from := i - 1
	if from < 0 {
		from = 0
	}
	s.grouping.Regroup(c.Range(from, from+RegroupWindow), i == 0)
}

// regroupAfterDelete i is the removed position, now held by the old successor
func (s *MessageStore) regroupAfterDelete(c *orderedmap.Map[string, *domain.Message], i int) {
	if s.grouping == nil || i < 0 || c.Len() == 0 {
		return
	}
	from := i - 1
	if from < 0 {
		from = 0
	}
	s.grouping.Regroup(c.Range(from, i+1), i == 0)
}
