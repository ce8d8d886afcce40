package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/brandcast/internal/transfer"
	"github.com/maheshrc27/brandcast/pkg/utils"
)

const (
	LocalUserID = "user_id"
	LocalRole   = "role"
)

type AuthMiddleware struct {
	secretKey  string
	cronSecret string
	logger     *slog.Logger
}

func NewAuthMiddleware(secretKey, cronSecret string, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{secretKey: secretKey, cronSecret: cronSecret, logger: logger}
}

func bearer(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
	})
}

func (m *AuthMiddleware) cronToken(token string) bool {
	return m.cronSecret != "" && token != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(m.cronSecret)) == 1
}

// CronAuth admits only the scheduler's bearer secret, which is distinct from
// user sessions.
func (m *AuthMiddleware) CronAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.cronToken(bearer(c)) {
			m.logger.Warn("rejected trigger call", "ip", c.IP(), "path", c.Path())
			return unauthorized(c, "Invalid cron secret")
		}
		return c.Next()
	}
}

// UserAuth validates a user JWT and stores its claims in locals.
func (m *AuthMiddleware) UserAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearer(c)
		if token == "" {
			return unauthorized(c, "Missing token")
		}
		claims, err := utils.ValidateToken(m.secretKey, token)
		if err != nil {
			m.logger.Debug("token validation failed", "error", err)
			return unauthorized(c, "Invalid or expired token")
		}
		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalRole, claims.Role)
		return c.Next()
	}
}

// OperatorAuth accepts the cron secret or an admin JWT.
func (m *AuthMiddleware) OperatorAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearer(c)
		if m.cronToken(token) {
			return c.Next()
		}
		if token == "" {
			return unauthorized(c, "Missing token")
		}
		claims, err := utils.ValidateToken(m.secretKey, token)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}
		if claims.Role != transfer.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Operator access required",
			})
		}
		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalRole, claims.Role)
		return c.Next()
	}
}
