// Package auth verifies the shop's HS256 session tokens. The same tokens are
// issued by the storefront backend; Issue exists for tests and local tooling.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopdesk/supportchat/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const roleAdmin = "admin"

// Claims mirror the storefront token: numeric id, email and the admin flag.
type Claims struct {
	jwt.RegisteredClaims
	UserID  int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
	Role    string `json:"role,omitempty"`
}

func (c *Claims) Principal() model.Principal {
	kind := model.KindCustomer
	if c.IsAdmin || c.Role == roleAdmin {
		kind = model.KindStaff
	}
	return model.Principal{ID: c.UserID, Kind: kind, Email: c.Email, Name: c.Name}
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewManager(secret string, ttl time.Duration, issuer string) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

// Issue signs a token for p.
func (m *Manager) Issue(p model.Principal) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		UserID:  p.ID,
		Email:   p.Email,
		Name:    p.Name,
		IsAdmin: p.IsStaff(),
	}
	if p.IsStaff() {
		claims.Role = roleAdmin
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses token and returns its principal.
func (m *Manager) Verify(token string) (model.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Principal{}, ErrExpiredToken
		}
		return model.Principal{}, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return model.Principal{}, ErrInvalidToken
	}
	return claims.Principal(), nil
}
