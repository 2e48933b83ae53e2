package app

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"channel_sync_service/internal/channel/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func startWebsocketServer(t *testing.T, engine *MessageSyncEngine) string {
	t.Helper()
	handler := NewChannelWebsocketHandler(engine)

	appFiber := fiber.New(fiber.Config{DisableStartupMessage: true})
	appFiber.Get("/ws", websocket.New(func(c *websocket.Conn) {
		handler.HandleConnection(context.Background(), c)
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go appFiber.Listener(ln)
	t.Cleanup(func() { _ = appFiber.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws"
}

func dialWebsocket(t *testing.T, url string) *gws.Conn {
	t.Helper()
	var conn *gws.Conn
	require.Eventually(t, func() bool {
		c, _, err := gws.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readAction skip pushes until a frame with the wanted action arrives
func readAction(t *testing.T, conn *gws.Conn, action string) domain.WSResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var resp domain.WSResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Action == action {
			return resp
		}
	}
}

func TestChannelWebsocketHandler_OpenAndSend(t *testing.T) {
	row := msgAt("real-1", "me", 0)
	row.Content = "hi"
	f := newEngineFixture(t, func(db *MockPersistence) {
		db.On("InsertMessage", mock.Anything, mock.Anything).Return(row, nil).Once()
	})
	conn := dialWebsocket(t, startWebsocketServer(t, f.e))

	require.NoError(t, conn.WriteJSON(domain.WSRequest{Action: string(domain.OpenChannel), HeadingID: "c1"}))
	resp := readAction(t, conn, string(domain.OpenChannel))
	assert.True(t, resp.Success)
	assert.Equal(t, string(domain.StateSubscribed), resp.Payload["state"])

	require.NoError(t, conn.WriteJSON(domain.WSRequest{Action: string(domain.SendMessage), ChannelID: "c1", Content: "hi"}))
	push := readAction(t, conn, string(domain.PushViewUpdate))
	assert.Equal(t, "c1", push.Payload["channel_id"])

	resp = readAction(t, conn, string(domain.SendMessage))
	assert.True(t, resp.Success)
	msg, ok := resp.Payload["message"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "real-1", msg["id"])

	require.NoError(t, conn.WriteJSON(domain.WSRequest{Action: string(domain.GetMessages), ChannelID: "c1"}))
	resp = readAction(t, conn, string(domain.GetMessages))
	assert.Len(t, resp.Payload["messages"], 1)
}

func TestChannelWebsocketHandler_RejectedWriteToasts(t *testing.T) {
	f := newEngineFixture(t, func(db *MockPersistence) {
		db.On("ListMessages", mock.Anything, "c1", (*time.Time)(nil), 50).
			Return([]domain.Message{msgAt("A", "me", 0)}, nil).Once()
		db.On("DeleteMessage", mock.Anything, "A").Return(errors.New("denied")).Once()
	})
	f.open(t, "c1")
	conn := dialWebsocket(t, startWebsocketServer(t, f.e))

	require.NoError(t, conn.WriteJSON(domain.WSRequest{Action: string(domain.DeleteMessage), ChannelID: "c1", MessageID: "A"}))
	toast := readAction(t, conn, string(domain.PushToast))
	assert.Equal(t, "Message could not be deleted", toast.Payload["message"])

	resp := readAction(t, conn, string(domain.DeleteMessage))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.Len(t, f.e.Messages("c1"), 1)
}

func TestChannelWebsocketHandler_UnknownAction(t *testing.T) {
	f := newEngineFixture(t, nil)
	conn := dialWebsocket(t, startWebsocketServer(t, f.e))

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "dance"}))
	resp := readAction(t, conn, "error")
	assert.Contains(t, resp.Error, "dance")
}
