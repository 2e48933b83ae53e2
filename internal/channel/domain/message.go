package domain

import (
	"strings"
	"time"
)

const (
	// MetaPinned metadata key carrying the persisted pin flag
	MetaPinned = "pinned"
	// MetaType metadata key carrying the system-event type
	MetaType = "type"

	// TempIDPrefix prefix of client generated ids for optimistic messages
	TempIDPrefix = "temp-"
)

// ReactionEntry one user's reaction under a key
type ReactionEntry struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Reactions reaction key -> ordered entries
type Reactions map[string][]ReactionEntry

// Clone deep copy
func (r Reactions) Clone() Reactions {
	if r == nil {
		return nil
	}
	out := make(Reactions, len(r))
	for k, v := range r {
		out[k] = append([]ReactionEntry(nil), v...)
	}
	return out
}

// Has report whether userID reacted with key
func (r Reactions) Has(key, userID string) bool {
	for _, e := range r[key] {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

// ReplyPreview the part of a replied-to message shown above a reply
type ReplyPreview struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Message one chat message in a heading channel.
// Fields below the blank line are derived on the client and never persisted.
type Message struct {
	ID               string                 `json:"id"`
	ChannelID        string                 `json:"channel_id"`
	UserID           string                 `json:"user_id"`
	Content          string                 `json:"content"`
	HTML             *string                `json:"html,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	EditedAt         *time.Time             `json:"edited_at,omitempty"`
	DeletedAt        *time.Time             `json:"deleted_at,omitempty"`
	ReplyToMessageID *string                `json:"reply_to_message_id,omitempty"`
	Reactions        Reactions              `json:"reactions,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`

	GroupedWithPrevious bool          `json:"is_grouped_with_previous"`
	User                *UserRecord   `json:"user_details,omitempty"`
	UserPending         bool          `json:"user_pending,omitempty"`
	RepliedMessage      *ReplyPreview `json:"replied_message_details,omitempty"`
	Pending             bool          `json:"pending,omitempty"`
}

// Clone deep copy so readers never share maps with the store
func (m Message) Clone() Message {
	out := m
	out.Reactions = m.Reactions.Clone()
	if m.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	if m.User != nil {
		u := *m.User
		out.User = &u
	}
	if m.RepliedMessage != nil {
		r := *m.RepliedMessage
		out.RepliedMessage = &r
	}
	return out
}

// IsDeleted soft deleted row
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// IsSystem system/event message (join, rename, pin notice...)
func (m *Message) IsSystem() bool {
	if m.Metadata == nil {
		return false
	}
	t, ok := m.Metadata[MetaType].(string)
	return ok && t != ""
}

// IsReply message answers another one
func (m *Message) IsReply() bool {
	return m.ReplyToMessageID != nil && *m.ReplyToMessageID != ""
}

// IsPinned persisted pin flag
func (m *Message) IsPinned() bool {
	if m.Metadata == nil {
		return false
	}
	p, _ := m.Metadata[MetaPinned].(bool)
	return p
}

// SetPinned set the pin flag in metadata
func (m *Message) SetPinned(pinned bool) {
	if m.Metadata == nil {
		m.Metadata = map[string]interface{}{}
	}
	m.Metadata[MetaPinned] = pinned
}

// Preview reply preview of this message
func (m *Message) Preview() *ReplyPreview {
	return &ReplyPreview{ID: m.ID, UserID: m.UserID, Content: m.Content, CreatedAt: m.CreatedAt}
}

// IsTempID id was generated client side for an optimistic send
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// MergeFrom shallow merge of a server row onto m. Every change event carries
// the full persisted row, so each persisted field takes the server value,
// null included; derived fields are kept.
func (m *Message) MergeFrom(row Message) {
	row = row.Clone()
	m.ChannelID = row.ChannelID
	m.UserID = row.UserID
	m.Content = row.Content
	m.HTML = row.HTML
	if !row.CreatedAt.IsZero() {
		m.CreatedAt = row.CreatedAt
	}
	m.EditedAt = row.EditedAt
	m.DeletedAt = row.DeletedAt
	m.ReplyToMessageID = row.ReplyToMessageID
	m.Reactions = row.Reactions
	m.Metadata = row.Metadata
}

// PendingOptimisticMessage a locally sent message waiting for its authoritative row
type PendingOptimisticMessage struct {
	TempID    string
	ChannelID string
	UserID    string
	Content   string
	CreatedAt time.Time
}

// Matches row is the authoritative copy of p when channel, author and content
// agree and the timestamps are within window
func (p PendingOptimisticMessage) Matches(row Message, window time.Duration) bool {
	if p.ChannelID != row.ChannelID || p.UserID != row.UserID || p.Content != row.Content {
		return false
	}
	d := row.CreatedAt.Sub(p.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= window
}
