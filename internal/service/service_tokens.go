package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeInternal grants access to every company's transactions.
const ScopeInternal = "internal"

const tokenIssuer = "acquiring-core"

// ServiceClaims are the claims carried by caller tokens. Sub is the calling
// company id.
type ServiceClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Internal reports whether the token grants cross-company access.
func (c *ServiceClaims) Internal() bool {
	return c.Scope == ScopeInternal
}

// CanAccess reports whether the caller may act on companyID's resources.
func (c *ServiceClaims) CanAccess(companyID string) bool {
	return c.Internal() || c.Subject == companyID
}

// TokenService signs and validates HS256 service tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. A zero ttl issues tokens valid for one hour.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for companyID with an optional scope.
func (s *TokenService) Issue(companyID, scope string) (string, error) {
	if companyID == "" {
		return "", &domain.ErrValidation{Field: "sub", Message: "company id is required"}
	}
	now := s.now()
	claims := ServiceClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   companyID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies tokenString.
func (s *TokenService) Validate(tokenString string) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}
