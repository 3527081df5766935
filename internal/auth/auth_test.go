package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	s, err := NewService(opts, quietLogger())
	require.NoError(t, err)
	return s
}

func TestCheckSecret(t *testing.T) {
	plain := newService(t, Options{Secret: "open-sesame", JWTSecret: "k"})
	assert.True(t, plain.CheckSecret("open-sesame"))
	assert.False(t, plain.CheckSecret("open-sesame "))
	assert.False(t, plain.CheckSecret(""))

	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	hashed := newService(t, Options{Secret: "ignored", SecretHash: string(hash), JWTSecret: "k"})
	assert.True(t, hashed.CheckSecret("hashed-secret"))
	assert.False(t, hashed.CheckSecret("ignored"))

	_, err = NewService(Options{SecretHash: "not-bcrypt"}, quietLogger())
	assert.Error(t, err)
}

func TestUnsetSecretRejectsEverything(t *testing.T) {
	s := newService(t, Options{})
	assert.False(t, s.CheckSecret("admin"))
	assert.False(t, s.CheckSecret(""))
}

func TestIssueAndVerifyToken(t *testing.T) {
	s := newService(t, Options{Secret: "open-sesame", JWTSecret: "signing-key", TokenTTL: time.Hour})

	_, _, err := s.IssueToken("wrong")
	assert.ErrorIs(t, err, ErrInvalidCreds)

	token, expires, err := s.IssueToken("open-sesame")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	id, err := s.VerifyToken(token)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	// Expired
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Signed with another key
	other := newService(t, Options{Secret: "open-sesame", JWTSecret: "other-key"})
	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_RequiresAdminRole(t *testing.T) {
	s := newService(t, Options{Secret: "x", JWTSecret: "signing-key"})
	claims := jwt.MapClaims{
		"sub": "9a1f3f0e-8a43-4c55-9a53-2f5b8f0f6a11",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("signing-key"))
	require.NoError(t, err)

	_, err = s.VerifyToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	s := newService(t, Options{Secret: "open-sesame", JWTSecret: "signing-key"})
	token, _, err := s.IssueToken("open-sesame")
	require.NoError(t, err)

	e := echo.New()
	handler := s.Middleware(func(c echo.Context) error {
		if _, err := GetSessionIDFromContext(c); err == nil {
			return c.String(http.StatusOK, "token")
		}
		return c.String(http.StatusOK, "secret")
	})

	tests := []struct {
		name     string
		header   string
		value    string
		wantCode int
		wantBody string
	}{
		{"secret header", AdminHeader, "open-sesame", http.StatusOK, "secret"},
		{"bearer token", "Authorization", "Bearer " + token, http.StatusOK, "token"},
		{"wrong secret", AdminHeader, "guess", http.StatusUnauthorized, ""},
		{"bad scheme", "Authorization", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "Authorization", "Bearer abc.def.ghi", http.StatusUnauthorized, ""},
		{"nothing", "", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/cache/purge", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler(c)
			if tt.wantCode == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, tt.wantBody, rec.Body.String())
				return
			}
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.wantCode, he.Code)
		})
	}
}
