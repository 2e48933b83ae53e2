package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Operation change-feed row operation
type Operation string

const (
	// OpInsert row inserted
	OpInsert Operation = "insert"
	// OpUpdate row updated
	OpUpdate Operation = "update"
	// OpDelete row hard deleted
	OpDelete Operation = "delete"
)

// ParseOperation accepts both lower case and the Postgres TG_OP spelling
func ParseOperation(s string) Operation {
	return Operation(strings.ToLower(s))
}

// MessagesTable table the change feed is filtered on
const MessagesTable = "messages"

// ChangeEvent change-feed envelope
type ChangeEvent struct {
	Operation     Operation `json:"operation"`
	Table         string    `json:"table"`
	ChannelFilter string    `json:"channel_filter"`
	// Truncated Row only carries its key; the full row must be read back
	Truncated bool    `json:"truncated,omitempty"`
	Row       Message `json:"row"`
}

// UnmarshalJSON normalise TG_OP style operations
func (e *ChangeEvent) UnmarshalJSON(b []byte) error {
	type alias ChangeEvent
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	a.Operation = ParseOperation(string(a.Operation))
	*e = ChangeEvent(a)
	return nil
}

// BroadcastKind ephemeral broadcast event name
type BroadcastKind string

const (
	// EventPinnedMessage pin / unpin propagation
	EventPinnedMessage BroadcastKind = "pinnedMessage"
	// EventTypingIndicator start / stop typing
	EventTypingIndicator BroadcastKind = "typingIndicator"
	// EventPresence heartbeat / leave
	EventPresence BroadcastKind = "presence"
)

// BroadcastEnvelope wire shape of every broadcast
type BroadcastEnvelope struct {
	Event   BroadcastKind   `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// PinAction pin or unpin
type PinAction string

const (
	// ActionPin pin message
	ActionPin PinAction = "pin"
	// ActionUnpin unpin message
	ActionUnpin PinAction = "unpin"
)

// PinnedMessageEvent pinnedMessage broadcast payload
type PinnedMessageEvent struct {
	ActionType PinAction `json:"actionType"`
	Message    Message   `json:"message"`
	ActorID    string    `json:"actor_id,omitempty"`
	At         time.Time `json:"at"`
}

// TypingType start or stop
type TypingType string

const (
	// StartTyping first keypress of a burst
	StartTyping TypingType = "startTyping"
	// StopTyping burst ended or message sent
	StopTyping TypingType = "stopTyping"
)

// TypingIndicatorEvent typingIndicator broadcast payload
type TypingIndicatorEvent struct {
	Type            TypingType `json:"type"`
	ActiveChannelID string     `json:"activeChannelId"`
	User            UserRecord `json:"user"`
}

// PresenceEvent presence heartbeat payload
type PresenceEvent struct {
	ChannelID string         `json:"channel_id"`
	UserID    string         `json:"user_id"`
	Status    PresenceStatus `json:"status"`
	At        time.Time      `json:"at"`
}

// ViewKind what changed in the read model
type ViewKind string

const (
	// ViewMessages message list changed
	ViewMessages ViewKind = "messages"
	// ViewPresence online / typing changed
	ViewPresence ViewKind = "presence"
	// ViewPins pins changed
	ViewPins ViewKind = "pins"
	// ViewBookmarks bookmarks changed
	ViewBookmarks ViewKind = "bookmarks"
	// ViewSubscription channel subscription state changed
	ViewSubscription ViewKind = "subscription"
)

// ViewUpdate notification pushed to the UI, which re-reads the read model
type ViewUpdate struct {
	ChannelID string   `json:"channel_id"`
	Kind      ViewKind `json:"kind"`
}
