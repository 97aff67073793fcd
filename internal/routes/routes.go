package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/config"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/handlers"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	requireUser fiber.Handler,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	chatHandler *handlers.ChatHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limit per IP
	if cfg.RateLimitMax > 0 {
		api.Use(perIPLimiter(cfg.RateLimitMax))
	}

	api.Get("/health", healthHandler.Check)

	// Registration and login get a stricter limit
	credentials := []fiber.Handler{}
	if cfg.AuthRateLimitMax > 0 {
		credentials = append(credentials, perIPLimiter(cfg.AuthRateLimitMax))
	}
	api.Post("/users", append(credentials, authHandler.Register)...)
	api.Post("/login", append(credentials, authHandler.Login)...)

	// Protected routes resolve the caller on every request
	api.Post("/logout", requireUser, authHandler.Logout)

	me := api.Group("/me", requireUser)
	me.Get("", userHandler.Me)
	me.Put("", userHandler.UpdateMe)
	me.Delete("", userHandler.DeleteMe)

	chat := api.Group("/chat", requireUser)
	chat.Post("", chatHandler.Chat)
	chat.Post("/stream", chatHandler.Stream)
	chat.Get("/history", chatHandler.History)
}

func perIPLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	})
}
