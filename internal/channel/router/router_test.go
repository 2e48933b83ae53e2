package router

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"channel_sync_service/internal/channel/app"
	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	reg := prometheus.NewRegistry()
	engine := app.NewMessageSyncEngine(config.DefaultEngine(), domain.UserRecord{ID: "me"}, "w1", app.EngineDeps{
		Feed:        app.NewMockChangeFeed(),
		Broadcaster: app.NewMockBroadcaster(),
		Persistence: new(app.MockPersistence),
		Metrics:     app.NewMetrics(reg),
	})

	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterRoutes(r, engine, app.NewChannelWebsocketHandler(engine), reg)
	return r
}

func TestRegisterRoutes_Healthz(t *testing.T) {
	r := newTestApp(t)

	resp, err := r.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "", body["focused"])
}

func TestRegisterRoutes_Metrics(t *testing.T) {
	r := newTestApp(t)

	resp, err := r.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "sync_active_subscriptions")
}

func TestRegisterRoutes_WebsocketNeedsUpgrade(t *testing.T) {
	r := newTestApp(t)

	resp, err := r.Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
