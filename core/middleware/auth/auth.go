package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// Config holds configuration for the auth middleware.
type Config struct {
	// ApiKey is the secret key clients must present. Empty disables auth.
	ApiKey string
}

// New returns a middleware that validates the X-API-Key header and stores
// the calling actor (X-Actor header) in the request locals for auditing.
func New(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.ApiKey != "" {
			key := c.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.ApiKey)) != 1 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid or missing API key",
				})
			}
		}

		actor := c.Get("X-Actor")
		if actor == "" {
			actor = "api"
		}
		c.Locals("actor", actor)

		return c.Next()
	}
}
