package router

import (
	"context"

	"channel_sync_service/internal/channel/app"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// RegisterRoutes websocket for the UI, health and prometheus metrics
func RegisterRoutes(r *fiber.App, engine *app.MessageSyncEngine, channelWebsocket *app.ChannelWebsocketHandler, gatherer prometheus.Gatherer) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		channelWebsocket.HandleConnection(context.Background(), c)
	}))

	r.Get("/healthz", func(c *fiber.Ctx) error {
		focused := engine.Focused()
		body := fiber.Map{"status": "ok", "focused": focused}
		if focused != "" {
			body["state"] = engine.ChannelState(focused)
		}
		return c.JSON(body)
	})

	metrics := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/metrics", func(c *fiber.Ctx) error {
		metrics(c.Context())
		return nil
	})
}
