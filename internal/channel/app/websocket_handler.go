package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const pingInterval = 30 * time.Second

// wsConn serialises writes to one connection
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(resp domain.WSResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, []byte("ping"))
}

// ChannelWebsocketHandler UI surface of the engine: requests map to engine
// actions, read-model changes are pushed as view_update, rolled back writes as toast
type ChannelWebsocketHandler struct {
	engine *MessageSyncEngine

	mu    sync.RWMutex
	conns map[*wsConn]struct{}
}

// NewChannelWebsocketHandler create ChannelWebsocketHandler
func NewChannelWebsocketHandler(engine *MessageSyncEngine) *ChannelWebsocketHandler {
	h := &ChannelWebsocketHandler{
		engine: engine,
		conns:  make(map[*wsConn]struct{}),
	}
	engine.OnChange(h.pushViewUpdate)
	return h
}

// HandleConnection websocket entry point
func (h *ChannelWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	c := &wsConn{conn: conn}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	ctxClose, cancel := context.WithCancel(ctx)
	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		cancel()
		conn.Close()
		logger.Log.Info("websocket closed", zap.String("remote", conn.RemoteAddr().String()))
	}()

	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("data", appData))
		return nil
	})

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.ping(); err != nil {
					logger.Log.Warn("ping failed", zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("connection closed", zap.Error(err))
			} else {
				logger.Log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			h.send(c, domain.WSResponse{Action: "error", Error: "unsupported message type"})
			continue
		}
		h.textMessageAction(ctxClose, c, message)
	}
}

func (h *ChannelWebsocketHandler) textMessageAction(ctx context.Context, c *wsConn, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		h.send(c, domain.WSResponse{Action: "error", Error: "invalid request"})
		return
	}

	resp := domain.WSResponse{Action: req.Action, Payload: map[string]interface{}{}}
	var err error
	switch domain.Action(req.Action) {
	case domain.OpenChannel:
		var ch domain.Channel
		if ch, err = h.engine.OpenChannel(ctx, req.HeadingID); err == nil {
			resp.Payload["channel"] = ch
			resp.Payload["state"] = h.engine.ChannelState(ch.ID)
		}

	case domain.CloseChannel:
		h.engine.CloseChannel(req.ChannelID)

	case domain.SendMessage:
		var m domain.Message
		if m, err = h.engine.SendMessage(ctx, req.ChannelID, req.Content, req.ReplyTo); err == nil {
			resp.Payload["message"] = m
		}

	case domain.ToggleReaction:
		var r domain.Reactions
		if r, err = h.engine.ToggleReaction(ctx, req.ChannelID, req.MessageID, req.Key); err == nil {
			resp.Payload["reactions"] = r
		}

	case domain.PinMessage:
		err = h.engine.PinMessage(ctx, req.ChannelID, req.MessageID, req.Pin)

	case domain.BookmarkMessage:
		err = h.engine.BookmarkMessage(ctx, req.ChannelID, req.MessageID, req.Add)

	case domain.DeleteMessage:
		err = h.engine.DeleteMessage(ctx, req.ChannelID, req.MessageID)

	case domain.LoadHistory:
		var n int
		if n, err = h.engine.LoadHistory(ctx, req.ChannelID); err == nil {
			resp.Payload["added"] = n
		}

	case domain.FetchBookmarks:
		var page domain.BookmarkPage
		if page, err = h.engine.FetchBookmarks(ctx, req.WorkspaceID, req.Archived, req.Limit, req.Offset); err == nil {
			resp.Payload["bookmarks"] = page.Entries
			resp.Payload["total"] = page.Total
			resp.Payload["has_more"] = page.HasMore
		}

	case domain.Keypress:
		err = h.engine.Keypress(req.ChannelID)

	case domain.SetVisible:
		err = h.engine.SetVisible(ctx, req.Visible)

	case domain.SetOnline:
		err = h.engine.SetOnline(ctx, req.Online)

	case domain.GetMessages:
		resp.Payload["messages"] = h.engine.Messages(req.ChannelID)
		if last, ok := h.engine.LastMessage(req.ChannelID); ok {
			resp.Payload["last_message"] = last
		}

	case domain.GetPresence:
		resp.Payload["online"] = h.engine.Online(req.ChannelID)
		resp.Payload["typing"] = h.engine.Typing(req.ChannelID)

	case domain.GetPins:
		resp.Payload["pins"] = h.engine.Pins(req.ChannelID)

	default:
		h.send(c, domain.WSResponse{Action: "error", Error: "unknown action " + req.Action})
		return
	}

	if err != nil {
		resp.Error = err.Error()
		if wr, ok := IsWriteRejected(err); ok {
			h.send(c, domain.WSResponse{
				Action:  string(domain.PushToast),
				Payload: map[string]interface{}{"message": wr.Toast(), "action": wr.Action, "channel_id": wr.ChannelID},
			})
		}
		logger.Log.Warn("websocket action failed", zap.String("action", req.Action), zap.Error(err))
	} else {
		resp.Success = true
	}
	h.send(c, resp)
}

// pushViewUpdate fan a read-model change out to every connection
func (h *ChannelWebsocketHandler) pushViewUpdate(u domain.ViewUpdate) {
	resp := domain.WSResponse{
		Action:  string(domain.PushViewUpdate),
		Success: true,
		Payload: map[string]interface{}{"channel_id": u.ChannelID, "kind": u.Kind},
	}
	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		h.send(c, resp)
	}
}

func (h *ChannelWebsocketHandler) send(c *wsConn, resp domain.WSResponse) {
	if err := c.write(resp); err != nil {
		logger.Log.Warn("write message error", zap.Error(err))
	}
}
