package access

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// ErrUnknownKey is returned when no key matches a token's kid.
var ErrUnknownKey = errors.New("unknown signing key")

const (
	jwksFetchTimeout = 10 * time.Second
	jwksMinRefresh   = time.Minute
)

// JWKS resolves RSA signing keys published by an OpenID provider. The key set
// is discovered from the provider's configuration document, fetched on first
// use and refetched when an unknown kid shows up.
type JWKS struct {
	configURL  string
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	lastFetched time.Time
}

// NewJWKS creates a key set discovered through configURL.
func NewJWKS(configURL string, httpClient *http.Client) *JWKS {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: jwksFetchTimeout}
	}
	return &JWKS{configURL: configURL, httpClient: httpClient, now: time.Now}
}

// Key returns the public key for kid.
func (j *JWKS) Key(kid string) (*rsa.PublicKey, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if key, ok := j.lookup(kid); ok {
		return key, nil
	}
	if !j.lastFetched.IsZero() && j.now().Sub(j.lastFetched) < jwksMinRefresh {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}

	ctx, cancel := context.WithTimeout(context.Background(), jwksFetchTimeout)
	defer cancel()
	keys, err := j.fetch(ctx)
	j.lastFetched = j.now()
	if err != nil {
		return nil, err
	}
	j.keys = keys

	if key, ok := j.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
}

// lookup matches kid, or the only key when the token names none.
func (j *JWKS) lookup(kid string) (*rsa.PublicKey, bool) {
	if kid == "" && len(j.keys) == 1 {
		for _, k := range j.keys {
			return k, true
		}
	}
	k, ok := j.keys[kid]
	return k, ok
}

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (j *JWKS) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	var discovery struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := j.getJSON(ctx, j.configURL, &discovery); err != nil {
		return nil, fmt.Errorf("fetching openid configuration: %w", err)
	}
	if discovery.JWKSURI == "" {
		return nil, errors.New("openid configuration has no jwks_uri")
	}

	var set struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := j.getJSON(ctx, discovery.JWKSURI, &set); err != nil {
		return nil, fmt.Errorf("fetching key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := rsaKey(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func (j *JWKS) getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := j.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", res.Status)
	}
	return json.NewDecoder(res.Body).Decode(dest)
}

func rsaKey(k jsonWebKey) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 || exp.Int64() < 3 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
