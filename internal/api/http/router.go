package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Chats     *handlers.ChatsHandler
	Operators *handlers.OperatorsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")

	api.Post("/chats", cfg.Chats.StartChat)
	api.Get("/chats", cfg.Chats.ListChats)
	api.Get("/chats/:id", cfg.Chats.GetChat)
	api.Put("/chats/:id/status", cfg.Chats.UpdateStatus)
	api.Post("/chats/:id/extend", cfg.Chats.ExtendChat)
	api.Post("/chats/:id/messages", cfg.Chats.SendMessage)
	api.Get("/chats/:id/messages", cfg.Chats.ListMessages)
	api.Get("/clients", cfg.Chats.ListClients)

	api.Get("/operators", cfg.Operators.List)
	api.Put("/operators/:name/status", cfg.Operators.SetStatus)
}
