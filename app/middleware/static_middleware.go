package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PlugStatic guards the static prefix that serves the browser study
// client. Probes for /.well-known/ paths are answered directly so they
// never fall through to the API routes.
func PlugStatic(staticPrefix string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()

		if strings.HasPrefix(path, staticPrefix) {
			if strings.HasPrefix(path, "/.well-known/") {
				return c.JSON(fiber.Map{
					"status": "ignored dynamic-static",
				})
			}
		}

		return c.Next()
	}
}
