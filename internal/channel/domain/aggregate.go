package domain

import (
	"errors"
	"fmt"
	"time"
)

// AggregateEntry pin or bookmark
type AggregateEntry struct {
	ID        string    `json:"id,omitempty"`
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
	Archived  bool      `json:"archived,omitempty"`
	Message   *Message  `json:"message,omitempty"`
}

// BookmarkPage one page of getUserBookmarks
type BookmarkPage struct {
	Entries []AggregateEntry `json:"entries"`
	Total   int              `json:"total"`
	HasMore bool             `json:"has_more"`
}

// SubscriptionState per channel subscription lifecycle
type SubscriptionState string

const (
	// StateUnsubscribed no subscription
	StateUnsubscribed SubscriptionState = "UNSUBSCRIBED"
	// StateSubscribing waiting for the transport ack
	StateSubscribing SubscriptionState = "SUBSCRIBING"
	// StateSubscribed live
	StateSubscribed SubscriptionState = "SUBSCRIBED"
	// StateReconciling an event is being applied
	StateReconciling SubscriptionState = "RECONCILING"
	// StateDegraded subscription refused (auth); other channels unaffected
	StateDegraded SubscriptionState = "DEGRADED"
)

var (
	// ErrNotFound row does not exist
	ErrNotFound = errors.New("not found")
	// ErrSubscriptionAuth transport refused the subscription
	ErrSubscriptionAuth = errors.New("subscription not authorized")
	// ErrChannelClosed action on a channel that is not open
	ErrChannelClosed = errors.New("channel not open")
)

// WriteRejectedError a user action whose persistence write failed; the
// optimistic change has already been rolled back when this is returned
type WriteRejectedError struct {
	Action    string
	ChannelID string
	MessageID string
	Err       error
}

func (e *WriteRejectedError) Error() string {
	return fmt.Sprintf("%s rejected (channel %s, message %s): %v", e.Action, e.ChannelID, e.MessageID, e.Err)
}

func (e *WriteRejectedError) Unwrap() error {
	return e.Err
}

// Toast user visible message for a rejected write
func (e *WriteRejectedError) Toast() string {
	switch e.Action {
	case "sendMessage":
		return "Message could not be sent"
	case "toggleReaction":
		return "Reaction could not be saved"
	case "pinMessage":
		return "Pin could not be saved"
	case "bookmarkMessage":
		return "Bookmark could not be saved"
	case "deleteMessage":
		return "Message could not be deleted"
	default:
		return "Action failed"
	}
}
