package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const sessionCookie = "arena_session"
const sessionTTL = 7 * 24 * time.Hour

// SessionAuth signs and verifies the browser session cookie. The cookie
// carries a signed user id and nothing else; all user state lives in the DB.
type SessionAuth struct {
	secret []byte
}

func NewSessionAuth(secret string) *SessionAuth {
	if secret == "" {
		log.Fatal("SESSION_SECRET is not set, cannot sign session cookies")
	}
	return &SessionAuth{secret: []byte(secret)}
}

// Issue sets a fresh session cookie for the user.
func (s *SessionAuth) Issue(c *fiber.Ctx, userID string) error {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   int(sessionTTL.Seconds()),
		Path:     "/",
	})
	return nil
}

// Clear expires the session cookie.
func (s *SessionAuth) Clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    "",
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   -1,
		Path:     "/",
	})
}

// Middleware rejects requests without a valid session and attaches the
// user id to the request context for handlers.
func (s *SessionAuth) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(sessionCookie)
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "not logged in"})
		}

		token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			log.Printf("[Session] rejected cookie on %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid session"})
		}

		claims := token.Claims.(*jwt.RegisteredClaims)
		c.Locals("user_id", claims.Subject)
		return c.Next()
	}
}
