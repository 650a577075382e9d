package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/footprint-prints/footprint/internal/errs"
	"github.com/footprint-prints/footprint/internal/model"
)

// RoleAdmin is the app_metadata role that unlocks the admin endpoints.
const RoleAdmin = "admin"

// Principal is the caller of a request.
type Principal struct {
	UserID string
	Role   string
}

// Anonymous is the principal of unauthenticated callers.
var Anonymous = Principal{UserID: model.AnonymousUserID}

// IsAdmin reports whether p may use the admin endpoints.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// IsAnonymous reports whether p carries no verified identity.
func (p Principal) IsAnonymous() bool { return p.UserID == model.AnonymousUserID }

// Claims is the subset of a Supabase access token we read.
type Claims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	AppMetadata struct {
		Role string `json:"role,omitempty"`
	} `json:"app_metadata"`
}

// AuthService verifies and issues access tokens.
type AuthService interface {
	// Authenticate verifies an HS256 token and returns its principal.
	Authenticate(token string) (Principal, error)
	// Issue signs a token for userID with an optional app role.
	Issue(userID, role string, ttl time.Duration) (string, time.Time, error)
}

type AuthServiceImpl struct {
	signKey []byte
	now     func() time.Time
}

// NewAuthService constructs AuthService around the project's JWT secret.
func NewAuthService(signKey []byte) *AuthServiceImpl {
	return &AuthServiceImpl{signKey: signKey, now: time.Now}
}

// Authenticate parses token, checks signature and expiry, and maps sub to the user id.
func (s *AuthServiceImpl) Authenticate(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(s.signKey) == 0 {
		return Principal{}, errs.ErrUnauthorized
	}
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Principal{}, errors.Join(errs.ErrUnauthorized, err)
	}
	if c.Subject == "" {
		return Principal{}, errs.ErrUnauthorized
	}
	return Principal{UserID: c.Subject, Role: c.AppMetadata.Role}, nil
}

// Issue creates a signed HS256 JWT shaped like a Supabase access token.
func (s *AuthServiceImpl) Issue(userID, role string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("validation: empty user id")
	}
	now := s.now()
	exp := now.Add(ttl)
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: "authenticated",
	}
	c.AppMetadata.Role = role
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
