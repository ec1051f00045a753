package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"
	"time"

	"vetting/pkg/types"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sterlingJWKS = "https://sterling.test/.well-known/jwks.json"

type stubKeySets struct {
	sets map[string]jwk.Set
}

func (s *stubKeySets) Lookup(_ context.Context, u string) (jwk.Set, error) {
	set, ok := s.sets[u]
	if !ok {
		return nil, errors.New("jwks not registered")
	}
	return set, nil
}

// newSigningKey returns a private key and a set holding its public half.
func newSigningKey(t *testing.T, kid string) (jwk.Key, jwk.Set) {
	t.Helper()

	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	priv, err := jwk.Import(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, kid))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.ES256()))

	pub, err := jwk.PublicKeyOf(priv)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, kid))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.ES256()))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	return priv, set
}

func signToken(t *testing.T, key jwk.Key, claims map[string]any) string {
	t.Helper()

	b := jwt.NewBuilder()
	for name, value := range claims {
		b = b.Claim(name, value)
	}
	token, err := b.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), key))
	require.NoError(t, err)
	return string(signed)
}

func bodyHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func bearerWebhook(body, token string) *http.Request {
	req := webhookRequest("sterling", body, "")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestWebhookJWT(t *testing.T) {
	body := `{"type":"screening.completed","payload":{"id":"scr_1","status":"Complete","result":"Clear"}}`
	key, set := newSigningKey(t, "sterling-1")
	otherKey, _ := newSigningKey(t, "sterling-1")

	newJWTFixture := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.service.keySets = &stubKeySets{sets: map[string]jwk.Set{sterlingJWKS: set}}
		return f
	}

	valid := func() map[string]any {
		return map[string]any{
			jwt.ExpirationKey: time.Now().Add(5 * time.Minute),
			claimBodySHA256:   bodyHash(body),
		}
	}

	t.Run("token bound to body", func(t *testing.T) {
		f := newJWTFixture(t)
		f.checks.check.Status = types.CheckStatusApproved

		rec := f.do(bearerWebhook(body, signToken(t, key, valid())))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "sterling", f.checks.webhookProvider)
		assert.JSONEq(t, body, string(f.checks.webhookPayload))
	})

	withoutExpiry := valid()
	delete(withoutExpiry, jwt.ExpirationKey)
	withoutBodyHash := valid()
	delete(withoutBodyHash, claimBodySHA256)
	expired := valid()
	expired[jwt.ExpirationKey] = time.Now().Add(-time.Hour)

	rejected := map[string]*http.Request{
		"replayed with another body": bearerWebhook(`{"type":"screening.completed","payload":{"id":"scr_2"}}`, signToken(t, key, valid())),
		"no expiry":                  bearerWebhook(body, signToken(t, key, withoutExpiry)),
		"no body hash":               bearerWebhook(body, signToken(t, key, withoutBodyHash)),
		"expired":                    bearerWebhook(body, signToken(t, key, expired)),
		"unknown signing key":        bearerWebhook(body, signToken(t, otherKey, valid())),
		"no bearer token":            bearerWebhook(body, ""),
	}
	for name, req := range rejected {
		t.Run(name, func(t *testing.T) {
			f := newJWTFixture(t)
			rec := f.do(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, f.checks.webhookPayload)
		})
	}
}
