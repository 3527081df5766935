package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const AdminSessionKey contextKey = "admin_session"

// AdminHeader carries the shared admin secret.
const AdminHeader = "X-Admin-Secret"

// Middleware admits a request carrying the admin secret in X-Admin-Secret or
// an admin token as a Bearer credential.
func (s *Service) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.CheckSecret(c.Request().Header.Get(AdminHeader)) {
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized admin access")
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
		}

		sessionID, err := s.VerifyToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set(string(AdminSessionKey), sessionID)
		return next(c)
	}
}

// GetSessionIDFromContext returns the admin token's session id. Requests
// authorized by the shared secret have none.
func GetSessionIDFromContext(c echo.Context) (uuid.UUID, error) {
	val := c.Get(string(AdminSessionKey))
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("admin session not found in context")
	}
	return id, nil
}
