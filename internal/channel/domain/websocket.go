package domain

// Action websocket request action
type Action string

const (
	// OpenChannel websocket action open_channel
	OpenChannel Action = "open_channel"
	// CloseChannel websocket action close_channel
	CloseChannel Action = "close_channel"

	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// ToggleReaction websocket action toggle_reaction
	ToggleReaction Action = "toggle_reaction"
	// PinMessage websocket action pin_message
	PinMessage Action = "pin_message"
	// BookmarkMessage websocket action bookmark_message
	BookmarkMessage Action = "bookmark_message"
	// DeleteMessage websocket action delete_message
	DeleteMessage Action = "delete_message"

	// LoadHistory websocket action load_history
	LoadHistory Action = "load_history"
	// FetchBookmarks websocket action fetch_bookmarks
	FetchBookmarks Action = "fetch_bookmarks"
	// Keypress websocket action keypress
	Keypress Action = "keypress"

	// SetVisible websocket action set_visible
	SetVisible Action = "set_visible"
	// SetOnline websocket action set_online
	SetOnline Action = "set_online"

	// GetMessages websocket action get_messages
	GetMessages Action = "get_messages"
	// GetPresence websocket action get_presence
	GetPresence Action = "get_presence"
	// GetPins websocket action get_pins
	GetPins Action = "get_pins"

	// PushViewUpdate server push: a read model changed
	PushViewUpdate Action = "view_update"
	// PushToast server push: an action was rolled back
	PushToast Action = "toast"
)

// WSRequest websocket Request
type WSRequest struct {
	Action      string  `json:"action"`
	ChannelID   string  `json:"channel_id"`
	HeadingID   string  `json:"heading_id"`
	MessageID   string  `json:"message_id"`
	Content     string  `json:"content"`
	Key         string  `json:"key"`
	Pin         bool    `json:"pin"`
	Add         bool    `json:"add"`
	WorkspaceID string  `json:"workspace_id"`
	Archived    *bool   `json:"archived"`
	Limit       int     `json:"limit"`
	Offset      int     `json:"offset"`
	ReplyTo     *string `json:"reply_to"`
	Visible     bool    `json:"visible"`
	Online      bool    `json:"online"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
