package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ServiceTokens issues short-lived HS256 tokens this service presents to the
// Reclamos API.
type ServiceTokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewServiceTokens builds a signer. It returns nil when no secret is
// configured, which disables the Authorization header.
func NewServiceTokens(secret, issuer string, ttl time.Duration) *ServiceTokens {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ServiceTokens{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Claims describes the service token payload.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

const dispatchScope = "reclamos:estado"

// Sign returns a fresh token.
func (s *ServiceTokens) Sign() (string, error) {
	if s == nil {
		return "", errors.New("service tokens not configured")
	}
	now := s.now()
	claims := &Claims{
		Scope: dispatchScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse validates a token signed with the same secret.
func (s *ServiceTokens) Parse(tokenStr string) (*Claims, error) {
	if s == nil {
		return nil, errors.New("service tokens not configured")
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
