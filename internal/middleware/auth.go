package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// ServerKey authenticates the game server's calls with a shared key header.
func ServerKey(expectedKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Server-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
			return c.Status(403).JSON(fiber.Map{"error": "invalid server key"})
		}
		return c.Next()
	}
}

// AdminKey authenticates ops tooling.
func AdminKey(expectedKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Admin-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
			return c.Status(403).JSON(fiber.Map{"error": "invalid admin key"})
		}
		return c.Next()
	}
}
