package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "admin"

func Protected() fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(config.App.Auth.JWTSecret),
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

func claims(c *fiber.Ctx) (jwt.MapClaims, bool) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return nil, false
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	return mc, ok
}

// UserID returns the authenticated user's id from the JWT claims.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	mc, ok := claims(c)
	if !ok {
		return uuid.Nil, errors.New("missing token claims")
	}
	raw, _ := mc["user_id"].(string)
	return uuid.Parse(raw)
}

func Role(c *fiber.Ctx) string {
	mc, ok := claims(c)
	if !ok {
		return ""
	}
	role, _ := mc["role"].(string)
	return role
}

func IsAdmin(c *fiber.Ctx) bool {
	return Role(c) == RoleAdmin
}

func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsAdmin(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: Admin access required",
			})
		}
		return c.Next()
	}
}

// CronSecret guards scheduler endpoints with a shared bearer secret. A
// bcrypt hash is preferred; the plain secret is compared in constant time.
func CronSecret() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header || !cronTokenValid(token) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid cron credential"})
		}
		return c.Next()
	}
}

func cronTokenValid(token string) bool {
	auth := config.App.Auth
	if auth.CronSecretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(auth.CronSecretHash), []byte(token)) == nil
	}
	if auth.CronSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(auth.CronSecret), []byte(token)) == 1
}
