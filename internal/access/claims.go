// Package access turns identities into folder grants. The claims resolver reads
// grants from a caller's bearer token; the enricher computes them at sign-in.
package access

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/policy"
)

// Claim names shared by the enrichment response and the bearer token.
const (
	ClaimApprovedReadItems  = "extension_ApprovedReadItems"
	ClaimApprovedWriteItems = "extension_ApprovedWriteItems"
	ClaimRole               = "extension_Role"
)

// ErrNoVerifier is returned when neither a shared secret nor a key set is configured.
var ErrNoVerifier = errors.New("no token verifier configured")

// Claims are the custom claims issued after enrichment.
type Claims struct {
	ApprovedReadItems  string `json:"extension_ApprovedReadItems,omitempty"`
	ApprovedWriteItems string `json:"extension_ApprovedWriteItems,omitempty"`
	Role               string `json:"extension_Role,omitempty"`
	jwt.RegisteredClaims
}

// ItemAccess converts the comma separated grants into an ItemAccessConfiguration.
func (c *Claims) ItemAccess() policy.ItemAccessConfiguration {
	return policy.ItemAccessConfiguration{
		Read:  policy.SplitList(c.ApprovedReadItems),
		Write: policy.SplitList(c.ApprovedWriteItems),
	}
}

// ClaimsResolver verifies bearer tokens and extracts folder grants.
type ClaimsResolver struct {
	secret   []byte
	keys     *JWKS
	audience string
	leeway   time.Duration
	logger   logger.Logger
}

// ClaimsOption configures a ClaimsResolver.
type ClaimsOption func(*ClaimsResolver)

// WithSharedSecret accepts HS256 tokens signed with secret.
func WithSharedSecret(secret string) ClaimsOption {
	return func(c *ClaimsResolver) {
		if secret != "" {
			c.secret = []byte(secret)
		}
	}
}

// WithKeySet accepts RS256 tokens signed by a key in keys.
func WithKeySet(keys *JWKS) ClaimsOption {
	return func(c *ClaimsResolver) { c.keys = keys }
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) ClaimsOption {
	return func(c *ClaimsResolver) { c.audience = audience }
}

// WithClaimsLogger sets the resolver's logger.
func WithClaimsLogger(l logger.Logger) ClaimsOption {
	return func(c *ClaimsResolver) { c.logger = l }
}

// NewClaimsResolver creates a ClaimsResolver.
func NewClaimsResolver(opts ...ClaimsOption) *ClaimsResolver {
	c := &ClaimsResolver{leeway: time.Minute, logger: logger.NoopLogger{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the grants of the request's bearer token. A missing or
// invalid token grants nothing.
func (c *ClaimsResolver) Resolve(r *http.Request) policy.ItemAccessConfiguration {
	raw, ok := bearerToken(r)
	if !ok {
		return policy.ItemAccessConfiguration{}
	}
	claims, err := c.Parse(raw)
	if err != nil {
		c.logger.Debug("rejecting bearer token", "error", err)
		return policy.ItemAccessConfiguration{}
	}
	return claims.ItemAccess()
}

// Parse verifies raw and returns its claims.
func (c *ClaimsResolver) Parse(raw string) (*Claims, error) {
	methods := make([]string, 0, 2)
	if c.keys != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	if c.secret != nil {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if len(methods) == 0 {
		return nil, ErrNoVerifier
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(c.leeway),
		jwt.WithExpirationRequired(),
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, c.keyFor, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	return claims, nil
}

func (c *ClaimsResolver) keyFor(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return c.secret, nil
	case *jwt.SigningMethodRSA:
		kid, _ := t.Header["kid"].(string)
		return c.keys.Key(kid)
	}
	return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(h[7:])
	return raw, raw != ""
}
