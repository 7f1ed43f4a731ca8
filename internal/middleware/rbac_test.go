package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func roleApp(role string, allowed ...string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	app.Use(RequireRole(allowed...))
	app.Get("/staff", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRoleAllowsStaff(t *testing.T) {
	for _, role := range []string{"moderator", "admin", " Moderator "} {
		app := roleApp(role, "moderator", "admin")

		req := httptest.NewRequest(http.MethodGet, "/staff", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "role %q must pass", role)
	}
}

func TestRequireRoleRejectsMarketplaceUsers(t *testing.T) {
	for _, role := range []string{"client", "professional", ""} {
		app := roleApp(role, "moderator", "admin")

		req := httptest.NewRequest(http.MethodGet, "/staff", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode, "role %q must be rejected", role)
	}
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func jwtApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(secret))
	app.Get("/me", func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		return c.JSON(fiber.Map{"role": role})
	})
	return app
}

func TestJWTProtectedRejectsMissingAndInvalidTokens(t *testing.T) {
	app := jwtApp("secret")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// Valid signature, wrong secret.
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other", jwt.MapClaims{"sub": 1}))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedPromotesAdminClaim(t *testing.T) {
	app := jwtApp("secret")

	claims := jwt.MapClaims{
		"sub":      float64(9),
		"role":     "client",
		"is_admin": true,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", claims))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Role string `json:"role"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, "admin", body.Role, "is_admin claim outranks the role claim")
}
