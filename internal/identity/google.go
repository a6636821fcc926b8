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
	"strconv"
	"strings"
	"sync"
	"time"

	"gameauth/internal/domain"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultGoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

	defaultKeysTTL      = time.Hour
	defaultRefetchEvery = 30 * time.Second
	clockLeeway         = 30 * time.Second
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

var errRefetchThrottled = errors.New("certs refetch throttled")

// GoogleVerifier validates Google Sign-In ID tokens (RS256) against Google's published keys.
type GoogleVerifier struct {
	clientIDs []string
	certsURL  string
	client    *http.Client
	logger    *zap.Logger
	now       func() time.Time
	// every certs fetch, whether for an unknown kid or an expired set, takes a token
	limiter *rate.Limiter
	fetches singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

type GoogleOption func(*GoogleVerifier)

func WithCertsURL(url string) GoogleOption {
	return func(g *GoogleVerifier) { g.certsURL = url }
}

func WithHTTPClient(client *http.Client) GoogleOption {
	return func(g *GoogleVerifier) { g.client = client }
}

func WithLogger(logger *zap.Logger) GoogleOption {
	return func(g *GoogleVerifier) { g.logger = logger }
}

func WithClock(now func() time.Time) GoogleOption {
	return func(g *GoogleVerifier) { g.now = now }
}

func WithRefetchInterval(d time.Duration) GoogleOption {
	return func(g *GoogleVerifier) { g.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

func NewGoogleVerifier(clientIDs []string, opts ...GoogleOption) *GoogleVerifier {
	g := &GoogleVerifier{
		clientIDs: clientIDs,
		certsURL:  DefaultGoogleCertsURL,
		client:    &http.Client{Timeout: 5 * time.Second},
		logger:    zap.NewNop(),
		now:       time.Now,
		limiter:   rate.NewLimiter(rate.Every(defaultRefetchEvery), 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type googleClaims struct {
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	jwtlib.RegisteredClaims
}

func (g *GoogleVerifier) Verify(ctx context.Context, assertion string) (*ExternalIdentity, error) {
	claims := &googleClaims{}
	_, err := jwtlib.ParseWithClaims(assertion, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		return g.key(ctx, kid)
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodRS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithLeeway(clockLeeway),
		jwtlib.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidAssertion, err)
	}

	if !containsAny(googleIssuers, claims.Issuer) {
		return nil, domain.Wrap(domain.CodeInvalidAssertion, fmt.Errorf("unexpected issuer %q", claims.Issuer))
	}
	if !audienceMatches(claims.Audience, g.clientIDs) {
		return nil, domain.Wrap(domain.CodeInvalidAssertion, errors.New("audience mismatch"))
	}
	if claims.Subject == "" {
		return nil, domain.Wrap(domain.CodeInvalidAssertion, errors.New("missing sub"))
	}

	return &ExternalIdentity{
		Provider:       "google",
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  bool(claims.EmailVerified),
	}, nil
}

// key returns the public key for kid, fetching the key set when the cache is stale or
// the kid is unknown (key rotation). Fetches are rate limited and concurrent callers
// share one request; a known key is served past its max-age while fetching fails.
func (g *GoogleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	g.mu.RLock()
	k, ok := g.keys[kid]
	fresh := g.now().Before(g.expiresAt)
	g.mu.RUnlock()
	if ok && fresh {
		return k, nil
	}

	// the fetch outlives any single caller that joined it
	fetchCtx := context.WithoutCancel(ctx)
	_, err, _ := g.fetches.Do("certs", func() (any, error) {
		if !g.limiter.AllowN(g.now(), 1) {
			return nil, errRefetchThrottled
		}
		return nil, g.refresh(fetchCtx)
	})
	if err != nil {
		if !errors.Is(err, errRefetchThrottled) {
			g.logger.Warn("google certs fetch failed", zap.String("url", g.certsURL), zap.Error(err))
		}
		if ok {
			return k, nil
		}
		if errors.Is(err, errRefetchThrottled) {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if k, ok := g.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}

type jwkSet struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		Alg string `json:"alg"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (g *GoogleVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.certsURL, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("certs endpoint returned %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := parseRSAKey(jwk.N, jwk.E)
		if err != nil {
			g.logger.Warn("skipping malformed jwk", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		keys[jwk.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("certs endpoint returned no usable keys")
	}

	ttl := maxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultKeysTTL
	}

	g.mu.Lock()
	g.keys = keys
	g.expiresAt = g.now().Add(ttl)
	g.mu.Unlock()
	g.logger.Debug("google certs refreshed", zap.Int("keys", len(keys)), zap.Duration("ttl", ttl))
	return nil
}

func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			secs, err := strconv.Atoi(v)
			if err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}

func audienceMatches(aud jwtlib.ClaimStrings, clientIDs []string) bool {
	for _, a := range aud {
		if containsAny(clientIDs, a) {
			return true
		}
	}
	return false
}

func containsAny(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// flexBool accepts both true and "true"; Google has emitted either form for email_verified.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true":
		*b = true
	case "false", "null", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}
