package web

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// authenticator issues and validates the single-admin session token.
type authenticator struct {
	password []byte
	secret   []byte
	ttl      time.Duration
}

func newAuthenticator(password, secret string, ttl time.Duration) *authenticator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &authenticator{password: []byte(password), secret: []byte(secret), ttl: ttl}
}

func (a *authenticator) checkPassword(candidate string) bool {
	if len(a.password) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a.password, []byte(candidate)) == 1
}

func (a *authenticator) issueToken(now time.Time) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"iat": now.Unix(),
		"exp": now.Add(a.ttl).Unix(),
	})
	return tok.SignedString(a.secret)
}

func (a *authenticator) validateToken(tokenString string) error {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnauthorized
		}
		return a.secret, nil
	})
	if err != nil || !tok.Valid {
		return errUnauthorized
	}
	return nil
}

// requireAuth validates the Bearer token on admin routes.
func (a *authenticator) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			return errUnauthorized
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return errUnauthorized
		}
		if err := a.validateToken(parts[1]); err != nil {
			return err
		}
		return next(c)
	}
}
