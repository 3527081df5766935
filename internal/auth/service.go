package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCreds = errors.New("invalid credentials")
	ErrInvalidToken = errors.New("invalid or expired token")
)

const adminRole = "admin"

// Options configures admin authentication. SecretHash (bcrypt) takes
// precedence over the plain Secret.
type Options struct {
	Secret     string
	SecretHash string
	JWTSecret  string
	TokenTTL   time.Duration
}

// Service checks the admin secret and issues and verifies admin tokens.
type Service struct {
	secret     []byte
	secretHash []byte
	jwtSecret  []byte
	tokenTTL   time.Duration
	now        func() time.Time
}

func NewService(opts Options, logger *logrus.Logger) (*Service, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	s := &Service{
		secret:   []byte(strings.TrimSpace(opts.Secret)),
		tokenTTL: opts.TokenTTL,
		now:      time.Now,
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = 12 * time.Hour
	}

	if h := strings.TrimSpace(opts.SecretHash); h != "" {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("admin secret hash is not a bcrypt hash: %w", err)
		}
		s.secretHash = []byte(h)
	}
	if len(s.secret) == 0 && s.secretHash == nil {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
		}
		s.secret = []byte(secret)
		logger.Warn("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	}

	if j := strings.TrimSpace(opts.JWTSecret); j != "" {
		s.jwtSecret = []byte(j)
	} else {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT fallback secret: %w", err)
		}
		s.jwtSecret = []byte(secret)
		logger.Warn("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	}
	return s, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CheckSecret compares a presented secret without leaking timing.
func (s *Service) CheckSecret(presented string) bool {
	if presented == "" {
		return false
	}
	if s.secretHash != nil {
		return bcrypt.CompareHashAndPassword(s.secretHash, []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare(s.secret, []byte(presented)) == 1
}

// IssueToken exchanges the admin secret for a signed admin token.
func (s *Service) IssueToken(presented string) (string, time.Time, error) {
	if !s.CheckSecret(presented) {
		return "", time.Time{}, ErrInvalidCreds
	}
	now := s.now()
	expires := now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub":  uuid.NewString(),
		"role": adminRole,
		"iat":  now.Unix(),
		"exp":  expires.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// VerifyToken checks an admin token and returns its session id.
func (s *Service) VerifyToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	if role, _ := claims["role"].(string); role != adminRole {
		return uuid.Nil, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
