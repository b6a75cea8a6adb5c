package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func signedToken(t *testing.T, secret, userID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func useSettings(t *testing.T, mutate func(*config.Settings)) {
	t.Helper()
	s := config.Defaults()
	s.Auth.JWTSecret = "test-secret"
	mutate(s)
	config.App = s
	t.Cleanup(func() { config.App = config.Defaults() })
}

func TestProtectedAndAdminRequired(t *testing.T) {
	useSettings(t, func(*config.Settings) {})

	app := fiber.New()
	app.Get("/me", Protected(), func(c *fiber.Ctx) error {
		id, err := UserID(c)
		if err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		return c.SendString(id.String())
	})
	app.Get("/admin", Protected(), AdminRequired(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	user := uuid.NewString()
	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"missing token", "/me", "", fiber.StatusBadRequest},
		{"wrong secret", "/me", signedToken(t, "other", user, "donor"), fiber.StatusUnauthorized},
		{"donor", "/me", signedToken(t, "test-secret", user, "donor"), fiber.StatusOK},
		{"donor on admin route", "/admin", signedToken(t, "test-secret", user, "donor"), fiber.StatusForbidden},
		{"admin", "/admin", signedToken(t, "test-secret", user, RoleAdmin), fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestCronSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	cases := []struct {
		name   string
		auth   config.AuthSettings
		header string
		status int
	}{
		{"plain secret", config.AuthSettings{CronSecret: "s3cret"}, "Bearer s3cret", fiber.StatusOK},
		{"wrong plain secret", config.AuthSettings{CronSecret: "s3cret"}, "Bearer nope", fiber.StatusUnauthorized},
		{"missing bearer prefix", config.AuthSettings{CronSecret: "s3cret"}, "s3cret", fiber.StatusUnauthorized},
		{"hashed secret", config.AuthSettings{CronSecretHash: string(hash)}, "Bearer hashed-token", fiber.StatusOK},
		{"hash mismatch", config.AuthSettings{CronSecretHash: string(hash)}, "Bearer s3cret", fiber.StatusUnauthorized},
		{"nothing configured", config.AuthSettings{}, "Bearer ", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			useSettings(t, func(s *config.Settings) { s.Auth = tc.auth })
			app := fiber.New()
			app.Post("/cron", CronSecret(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

			req := httptest.NewRequest("POST", "/cron", nil)
			req.Header.Set("Authorization", tc.header)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}
