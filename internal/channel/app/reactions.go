package app

import (
	"time"

	"channel_sync_service/internal/channel/domain"
)

// ToggleReaction add userID under key, or remove it when already there.
// Returns a new map; the input is not modified. An emptied key is dropped and
// an emptied map is nil, so toggling twice gives back the original map.
func ToggleReaction(reactions domain.Reactions, key, userID string, at time.Time) domain.Reactions {
	out := reactions.Clone()
	if out == nil {
		out = domain.Reactions{}
	}
	entries := out[key]
	for i, e := range entries {
		if e.UserID == userID {
			entries = append(entries[:i], entries[i+1:]...)
			if len(entries) == 0 {
				delete(out, key)
			} else {
				out[key] = entries
			}
			if len(out) == 0 {
				return nil
			}
			return out
		}
	}
	out[key] = append(entries, domain.ReactionEntry{UserID: userID, CreatedAt: at})
	return out
}

// ReactionStore reaction maps live on the messages in the MessageStore
type ReactionStore struct {
	store *MessageStore
}

// NewReactionStore create a ReactionStore
func NewReactionStore(store *MessageStore) *ReactionStore {
	return &ReactionStore{store: store}
}

// Toggle flip (key, userID) on a message; reports whether the user now has the reaction
func (r *ReactionStore) Toggle(channelID, messageID, key, userID string, at time.Time) (added, ok bool) {
	ok = r.store.Update(channelID, messageID, func(m *domain.Message) {
		m.Reactions = ToggleReaction(m.Reactions, key, userID, at)
		added = m.Reactions.Has(key, userID)
	})
	return added, ok
}

// Set replace a message's reactions with the authoritative map
func (r *ReactionStore) Set(channelID, messageID string, reactions domain.Reactions) bool {
	return r.store.Update(channelID, messageID, func(m *domain.Message) {
		m.Reactions = reactions.Clone()
	})
}

// Get reactions of one message
func (r *ReactionStore) Get(channelID, messageID string) (domain.Reactions, bool) {
	m, ok := r.store.Find(channelID, messageID)
	if !ok {
		return nil, false
	}
	return m.Reactions, true
}
