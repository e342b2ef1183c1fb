package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of token claims the storefront relies on.
type Claims struct {
	Subject string
	Role    string
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// ActorFromClaims maps a verified token onto an Actor. Unknown roles are rejected.
func ActorFromClaims(c *Claims) (Actor, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Guest(), fmt.Errorf("subject %q is not a principal id", c.Subject)
	}

	switch strings.ToLower(c.Role) {
	case "", "customer":
		return Customer(id), nil
	case "personnel":
		return Personnel(id), nil
	case "admin":
		return Admin(id), nil
	default:
		return Guest(), fmt.Errorf("unknown role %q", c.Role)
	}
}

type roleClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// HMACVerifier accepts HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	var claims roleClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("subject claim not found in token")
	}
	return &Claims{Subject: claims.Subject, Role: claims.Role}, nil
}

// IssueToken signs an HS256 token. Used by tests and local tooling.
func (v *HMACVerifier) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, roleClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}

// OIDCVerifier validates tokens against an OpenID provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims struct {
		Sub  string `json:"sub"`
		Role string `json:"role"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return &Claims{Subject: claims.Sub, Role: claims.Role}, nil
}
