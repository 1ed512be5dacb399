package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const adminSubject = "admin"

var (
	ErrBadPassword = errors.New("invalid password")
	ErrNoToken     = errors.New("missing bearer token")
)

// Sessions issues and verifies signed, expiring admin session tokens.
type Sessions struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	log      *logrus.Logger
}

func NewSessions(password string, secret []byte, ttl time.Duration, log *logrus.Logger) *Sessions {
	return &Sessions{password: []byte(password), secret: secret, ttl: ttl, now: time.Now, log: log}
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login checks the admin password and returns a new session.
func (s *Sessions) Login(password string) (Session, error) {
	if len(s.password) == 0 || subtle.ConstantTimeCompare([]byte(password), s.password) != 1 {
		return Session{}, ErrBadPassword
	}
	return s.issue()
}

func (s *Sessions) issue() (Session, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{Token: token, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Verify parses token and returns its expiry when it is a valid admin session.
func (s *Sessions) Verify(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(adminSubject),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}

func bearer(c *gin.Context) (string, error) {
	h := c.GetHeader("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", ErrNoToken
	}
	return strings.TrimSpace(h[len(prefix):]), nil
}

const expiresKey = "session_expires_at"

// RequireAdmin rejects requests without a valid admin session with 403.
func (s *Sessions) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearer(c)
		if err == nil {
			var exp time.Time
			if exp, err = s.Verify(token); err == nil {
				c.Set(expiresKey, exp)
				c.Next()
				return
			}
		}
		s.log.Warnf("admin check failed for %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "administrator session required"})
	}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *Sessions) HandleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	sess, err := s.Login(req.Password)
	if err != nil {
		if errors.Is(err, ErrBadPassword) {
			s.log.Warnf("admin login rejected from %s", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
			return
		}
		s.log.Errorf("issue session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// HandleSession reports the current session; mount behind RequireAdmin.
func (s *Sessions) HandleSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "expires_at": c.MustGet(expiresKey)})
}

// IsAdmin reports whether the request carries a valid admin session. It
// never aborts; use it on public routes that show more to administrators.
func (s *Sessions) IsAdmin(c *gin.Context) bool {
	token, err := bearer(c)
	if err != nil {
		return false
	}
	_, err = s.Verify(token)
	return err == nil
}
