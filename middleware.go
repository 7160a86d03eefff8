package main

import (
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// AuthMiddleware: shared-secret check at the service boundary. The cart
// and checkout subsystems call in with the internal secret; full identity
// handling lives outside this service.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("X-Internal-Secret") != secret {
			return c.Status(403).JSON(fiber.Map{"error": "Unauthorized"})
		}
		return c.Next()
	}
}

// BotDefenseMiddleware: rate limiting and traffic counting
func BotDefenseMiddleware() fiber.Handler {
	limiter := limiter.New(limiter.Config{
		Max:        120, // reqs/min per IP
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{"error": "Rate limit exceeded"})
		},
	})

	return func(c *fiber.Ctx) error {
		atomic.AddInt64(&currentRPS, 1) // Count traffic
		return limiter(c)
	}
}
