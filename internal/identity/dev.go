package identity

import (
	"context"
	"errors"
	"time"

	"gameauth/internal/domain"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// DevVerifier accepts HS256 assertions signed with a shared secret. It stands in for a
// real provider in local builds and automated tests and is refused in prod-like envs.
type DevVerifier struct {
	secret []byte
	now    func() time.Time
}

type DevClaims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	jwtlib.RegisteredClaims
}

func NewDevVerifier(secret string) *DevVerifier {
	return &DevVerifier{secret: []byte(secret), now: time.Now}
}

func (d *DevVerifier) Verify(_ context.Context, assertion string) (*ExternalIdentity, error) {
	claims := &DevClaims{}
	_, err := jwtlib.ParseWithClaims(assertion, claims, func(*jwtlib.Token) (any, error) {
		return d.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(d.now),
	)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidAssertion, err)
	}
	if claims.Subject == "" {
		return nil, domain.Wrap(domain.CodeInvalidAssertion, errors.New("missing sub"))
	}
	return &ExternalIdentity{
		Provider:       "dev",
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
	}, nil
}

// SignDevAssertion mints an assertion DevVerifier accepts. Used by tests and cmd tooling.
func SignDevAssertion(secret, subject, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := DevClaims{
		Email:         email,
		EmailVerified: email != "",
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
}
