package identity

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

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// TokenVerifier turns a federated ID token into a verified profile.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*FederatedProfile, error)
}

var _ TokenVerifier = (*JWKSVerifier)(nil)

// JWKSVerifier checks RS256 ID tokens against the signing keys published at a
// JWKS endpoint. Keys are cached and refreshed when stale or on an unknown kid.
type JWKSVerifier struct {
	jwksURL         string
	issuer          string
	audience        string
	httpClient      *http.Client
	refreshInterval time.Duration

	group     singleflight.Group
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

type JWKSOption func(*JWKSVerifier)

func WithHTTPClient(c *http.Client) JWKSOption {
	return func(v *JWKSVerifier) { v.httpClient = c }
}

func WithRefreshInterval(d time.Duration) JWKSOption {
	return func(v *JWKSVerifier) {
		if d > 0 {
			v.refreshInterval = d
		}
	}
}

// WithIssuer and WithAudience make the matching claim mandatory.
func WithIssuer(iss string) JWKSOption {
	return func(v *JWKSVerifier) { v.issuer = iss }
}

func WithAudience(aud string) JWKSOption {
	return func(v *JWKSVerifier) { v.audience = aud }
}

func NewJWKSVerifier(jwksURL string, opts ...JWKSOption) *JWKSVerifier {
	v := &JWKSVerifier{
		jwksURL:         jwksURL,
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		refreshInterval: time.Hour,
		keys:            make(map[string]*rsa.PublicKey),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

func (v *JWKSVerifier) Verify(ctx context.Context, idToken string) (*FederatedProfile, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims idTokenClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(idToken, &claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return v.key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("identity/jwks: %w", err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, errors.New("identity/jwks: token lacks subject or email")
	}

	return &FederatedProfile{
		Subject:       claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		Picture:       claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}

func (v *JWKSVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, found := v.lookup(kid)
	stale := time.Since(v.lastFetch) > v.refreshInterval
	v.mu.RUnlock()

	if found && !stale {
		return key, nil
	}

	_, err, _ := v.group.Do("refresh", func() (any, error) {
		return nil, v.refresh(ctx)
	})
	if err != nil {
		if found {
			return key, nil
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("identity/jwks: key not found for kid %q", kid)
}

// lookup must be called with v.mu held. An empty kid matches the only key
// when the set has exactly one.
func (v *JWKSVerifier) lookup(kid string) (*rsa.PublicKey, bool) {
	if key, ok := v.keys[kid]; ok {
		return key, true
	}
	if kid == "" && len(v.keys) == 1 {
		for _, k := range v.keys {
			return k, true
		}
	}
	return nil, false
}

func (v *JWKSVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("identity/jwks: create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity/jwks: fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity/jwks: fetch returned status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("identity/jwks: decode: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("identity/jwks: no valid RSA signing keys found")
	}

	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k *jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
