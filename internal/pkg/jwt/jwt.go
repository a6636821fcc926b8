package jwt

import (
	"errors"
	"fmt"
	"time"

	"gameauth/internal/domain"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest signing secret the issuer accepts.
const MinSecretLength = 8

type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

type Claims struct {
	UserID     string `json:"user_id"`
	ExternalID string `json:"external_id"`
	DeviceID   string `json:"device_id"`
	jwtlib.RegisteredClaims
}

type Option func(*Service)

func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// WithClock overrides time.Now for issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) TTL() time.Duration { return s.ttl }

// GenerateToken signs an access token for the user on the given device.
func (s *Service) GenerateToken(userID, externalID, deviceID string) (string, *Claims, error) {
	if len(s.secret) < MinSecretLength {
		return "", nil, domain.Wrap(domain.CodeConfig, fmt.Errorf("signing secret must be at least %d characters", MinSecretLength))
	}
	if s.ttl <= 0 {
		return "", nil, domain.Wrap(domain.CodeConfig, errors.New("access token ttl must be positive"))
	}

	now := s.now().UTC()
	claims := &Claims{
		UserID:     userID,
		ExternalID: externalID,
		DeviceID:   deviceID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, domain.Wrap(domain.CodeConfig, err)
	}
	return signed, claims, nil
}

// ValidateToken returns TOKEN_EXPIRED for an otherwise valid token past its expiry and
// TOKEN_INVALID for every other failure.
func (s *Service) ValidateToken(tokenStr string) (*Claims, error) {
	if len(s.secret) < MinSecretLength {
		return nil, domain.Wrap(domain.CodeConfig, fmt.Errorf("signing secret must be at least %d characters", MinSecretLength))
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(s.issuer))
	}

	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, domain.Wrap(domain.CodeTokenExpired, err)
		}
		return nil, domain.Wrap(domain.CodeTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, domain.Wrap(domain.CodeTokenInvalid, errors.New("invalid claims"))
	}
	return claims, nil
}
