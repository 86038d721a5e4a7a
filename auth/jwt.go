package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kilianp07/routecast/core/authz"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// JWTConfig configures HS256 subscriber tokens.
type JWTConfig struct {
	Secret        string `json:"secret"`
	Issuer        string `json:"issuer"`
	ExpiryMinutes int    `json:"expiry_minutes"`
}

func (c *JWTConfig) SetDefaults() {
	if c.Issuer == "" {
		c.Issuer = "routecast"
	}
	if c.ExpiryMinutes == 0 {
		c.ExpiryMinutes = 60
	}
}

// Claims are the token claims understood by routecast.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier issues and verifies HS256 tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	cfg.SetDefaults()
	if cfg.Secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &JWTVerifier{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		expiry: time.Duration(cfg.ExpiryMinutes) * time.Minute,
		now:    time.Now,
	}, nil
}

// Issue signs a token for subject.
func (v *JWTVerifier) Issue(subject, role string) (string, error) {
	now := v.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses tokenString and returns the authenticated principal.
func (v *JWTVerifier) Verify(tokenString string) (authz.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithTimeFunc(v.now))
	if err != nil {
		return authz.Anonymous, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return authz.Anonymous, ErrInvalidToken
	}
	p := authz.Principal{Subject: claims.Subject, Authenticated: true}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
