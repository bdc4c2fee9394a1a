package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jwksFixture struct {
	key     *rsa.PrivateKey
	server  *httptest.Server
	fetches atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &jwksFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"kid": "k1",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(f.key)
	require.NoError(t, err)
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            "https://id.example.com",
		"aud":            "loanhub",
		"sub":            "google|42",
		"email":          "grace@example.com",
		"email_verified": true,
		"name":           "Grace Hopper",
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
}

func TestJWKSVerifier(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a valid token and caches keys", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := NewJWKSVerifier(f.server.URL, WithIssuer("https://id.example.com"), WithAudience("loanhub"))

		profile, err := v.Verify(ctx, f.sign(t, "k1", validClaims()))
		require.NoError(t, err)
		assert.Equal(t, "google|42", profile.Subject)
		assert.Equal(t, "grace@example.com", profile.Email)
		assert.True(t, profile.EmailVerified)

		_, err = v.Verify(ctx, f.sign(t, "k1", validClaims()))
		require.NoError(t, err)
		assert.Equal(t, int32(1), f.fetches.Load())
	})

	t.Run("rejects wrong issuer", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := NewJWKSVerifier(f.server.URL, WithIssuer("https://other.example.com"))

		_, err := v.Verify(ctx, f.sign(t, "k1", validClaims()))
		assert.Error(t, err)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := NewJWKSVerifier(f.server.URL)

		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		_, err := v.Verify(ctx, f.sign(t, "k1", claims))
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("rejects unknown kid", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := NewJWKSVerifier(f.server.URL)

		_, err := v.Verify(ctx, f.sign(t, "rotated", validClaims()))
		assert.ErrorContains(t, err, "key not found")
	})

	t.Run("requires an email claim", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := NewJWKSVerifier(f.server.URL)

		claims := validClaims()
		delete(claims, "email")
		_, err := v.Verify(ctx, f.sign(t, "k1", claims))
		assert.ErrorContains(t, err, "subject or email")
	})
}
