package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"reachflow/store"
	"reachflow/utils"
)

// API keys look like "rf_<tenantID>_<secret>". The tenant ID prefix lets us
// load exactly one row and bcrypt-compare against its stored hash instead of
// scanning every tenant.
func parseAPIKey(key string) (uint, bool) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 || parts[0] != "rf" || parts[2] == "" {
		return 0, false
	}
	id := utils.ParseUint(parts[1])
	if id == 0 {
		return 0, false
	}
	return id, true
}

// APIKeyAuth authenticates requests by the X-API-Key header and stores the
// resolved tenant in Locals("tenant") / Locals("tenantID").
func APIKeyAuth(st store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-API-Key")
		if key == "" {
			// Fall back to Bearer token for clients that cannot set
			// custom headers.
			authHeader := c.Get("Authorization")
			if after, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
				key = after
			}
		}
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key required",
			})
		}

		tenantID, ok := parseAPIKey(key)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		tenant, err := st.GetTenant(tenantID)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		if err := bcrypt.CompareHashAndPassword([]byte(tenant.APIKeyHash), []byte(key)); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		c.Locals("tenant", tenant)
		c.Locals("tenantID", tenant.ID)
		return c.Next()
	}
}

// InternalAuth guards operational endpoints with a static shared token
func InternalAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" || c.Get("X-Internal-Token") != token {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden",
			})
		}
		return c.Next()
	}
}
