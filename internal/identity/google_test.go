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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gameauth/internal/domain"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "game-client.apps.googleusercontent.com"

type certsServer struct {
	*httptest.Server
	keys  map[string]*rsa.PrivateKey
	hits  atomic.Int32
	flaky atomic.Bool
}

func newCertsServer(t *testing.T, kids ...string) *certsServer {
	t.Helper()
	cs := &certsServer{keys: make(map[string]*rsa.PrivateKey)}
	for _, kid := range kids {
		cs.addKey(t, kid)
	}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		if cs.flaky.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var set struct {
			Keys []map[string]string `json:"keys"`
		}
		for kid, k := range cs.keys {
			set.Keys = append(set.Keys, map[string]string{
				"kid": kid,
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(k.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.PublicKey.E)).Bytes()),
			})
		}
		w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *certsServer) addKey(t *testing.T, kid string) {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cs.keys[kid] = k
}

func (cs *certsServer) sign(t *testing.T, kid string, claims jwtlib.MapClaims) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(cs.keys[kid])
	require.NoError(t, err)
	return s
}

func idTokenClaims(sub string, mutate func(jwtlib.MapClaims)) jwtlib.MapClaims {
	now := time.Now()
	c := jwtlib.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            sub,
		"email":          "player@example.com",
		"email_verified": true,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(c)
	}
	return c
}

func TestGoogleVerifier_Valid(t *testing.T) {
	cs := newCertsServer(t, "k1")
	v := NewGoogleVerifier([]string{"other-client", testClientID}, WithCertsURL(cs.URL))

	id, err := v.Verify(context.Background(), cs.sign(t, "k1", idTokenClaims("g-123", nil)))
	require.NoError(t, err)
	assert.Equal(t, "google", id.Provider)
	assert.Equal(t, "g-123", id.ProviderUserID)
	assert.Equal(t, "player@example.com", id.Email)
	assert.True(t, id.EmailVerified)

	// cached keys are reused
	_, err = v.Verify(context.Background(), cs.sign(t, "k1", idTokenClaims("g-456", nil)))
	require.NoError(t, err)
	assert.Equal(t, int32(1), cs.hits.Load())
}

func TestGoogleVerifier_EmailVerifiedAsString(t *testing.T) {
	cs := newCertsServer(t, "k1")
	v := NewGoogleVerifier([]string{testClientID}, WithCertsURL(cs.URL))

	id, err := v.Verify(context.Background(), cs.sign(t, "k1", idTokenClaims("g-1", func(c jwtlib.MapClaims) {
		c["email_verified"] = "false"
		c["iss"] = "accounts.google.com"
	})))
	require.NoError(t, err)
	assert.False(t, id.EmailVerified)
}

func TestGoogleVerifier_Rejects(t *testing.T) {
	cs := newCertsServer(t, "k1")
	v := NewGoogleVerifier([]string{testClientID}, WithCertsURL(cs.URL))

	cases := map[string]func(jwtlib.MapClaims){
		"wrong audience": func(c jwtlib.MapClaims) { c["aud"] = "someone-else" },
		"wrong issuer":   func(c jwtlib.MapClaims) { c["iss"] = "https://evil.example.com" },
		"expired":        func(c jwtlib.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
		"no expiry":      func(c jwtlib.MapClaims) { delete(c, "exp") },
		"no subject":     func(c jwtlib.MapClaims) { delete(c, "sub") },
	}
	for name, mutate := range cases {
		_, err := v.Verify(context.Background(), cs.sign(t, "k1", idTokenClaims("g-1", mutate)))
		assert.ErrorIs(t, err, domain.ErrInvalidAssertion, name)
	}

	// HS256 with the modulus as secret must not pass as RS256
	hs := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, idTokenClaims("g-1", nil))
	hs.Header["kid"] = "k1"
	forged, err := hs.SignedString(cs.keys["k1"].PublicKey.N.Bytes())
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), forged)
	assert.ErrorIs(t, err, domain.ErrInvalidAssertion)
}

func TestGoogleVerifier_KeyRotationRefetches(t *testing.T) {
	cs := newCertsServer(t, "k1")
	now := time.Now()
	v := NewGoogleVerifier([]string{testClientID}, WithCertsURL(cs.URL), WithClock(func() time.Time { return now }))

	_, err := v.Verify(context.Background(), cs.sign(t, "k1", idTokenClaims("g-1", nil)))
	require.NoError(t, err)

	// new kid shows up after the refetch interval
	now = now.Add(time.Minute)
	cs.addKey(t, "k2")
	_, err = v.Verify(context.Background(), cs.sign(t, "k2", idTokenClaims("g-1", nil)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), cs.hits.Load())

	// a burst of unknown kids does not hammer the endpoint
	for i := 0; i < 5; i++ {
		bogus := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, idTokenClaims("g-1", nil))
		bogus.Header["kid"] = "unknown"
		s, err := bogus.SignedString(cs.keys["k1"])
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), s)
		assert.ErrorIs(t, err, domain.ErrInvalidAssertion)
	}
	assert.Equal(t, int32(2), cs.hits.Load())
}

func TestGoogleVerifier_StaleKeysSurviveOutage(t *testing.T) {
	cs := newCertsServer(t, "k1")
	now := time.Now()
	clock := func() time.Time { return now }
	v := NewGoogleVerifier([]string{testClientID}, WithCertsURL(cs.URL), WithClock(clock))

	_, err := v.Verify(context.Background(), cs.sign(t, "k1", idTokenClaims("g-1", nil)))
	require.NoError(t, err)

	cs.flaky.Store(true)
	now = now.Add(2 * time.Hour)
	token := cs.sign(t, "k1", idTokenClaims("g-1", func(c jwtlib.MapClaims) {
		c["iat"] = now.Unix()
		c["exp"] = now.Add(time.Hour).Unix()
	}))

	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := v.Verify(context.Background(), token); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, failed.Load())
	// one retry against the failing endpoint, not one per login
	assert.Equal(t, int32(2), cs.hits.Load())

	now = now.Add(defaultRefetchEvery + time.Second)
	_, err = v.Verify(context.Background(), token)
	assert.NoError(t, err)
	assert.Equal(t, int32(3), cs.hits.Load())
}

func TestMaxAge(t *testing.T) {
	assert.Equal(t, 19800*time.Second, maxAge("public, max-age=19800, must-revalidate, no-transform"))
	assert.Equal(t, time.Duration(0), maxAge("no-store"))
}
