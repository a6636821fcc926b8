package jwt

import (
	"testing"
	"time"

	"gameauth/internal/domain"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := New("test-secret-123", time.Hour, WithIssuer("gameauth"))

	token, issued, err := svc.GenerateToken("u-1", "g-123", "d-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "g-123", claims.ExternalID)
	assert.Equal(t, "d-1", claims.DeviceID)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, "gameauth", claims.Issuer)
}

func TestGenerateRejectsWeakSecret(t *testing.T) {
	for _, secret := range []string{"", "1234567"} {
		_, _, err := New(secret, time.Hour).GenerateToken("u-1", "g-1", "d-1")
		assert.ErrorIs(t, err, domain.ErrConfig, "secret %q", secret)
	}
}

func TestValidateDistinguishesExpiry(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	past := New("test-secret-123", time.Hour, WithClock(func() time.Time { return issuedAt }))
	token, _, err := past.GenerateToken("u-1", "g-1", "d-1")
	require.NoError(t, err)

	_, err = New("test-secret-123", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
	assert.NotErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestValidateInvalidCases(t *testing.T) {
	svc := New("test-secret-123", time.Hour, WithIssuer("gameauth"))
	good, _, err := svc.GenerateToken("u-1", "g-1", "d-1")
	require.NoError(t, err)

	otherIssuer, _, err := New("test-secret-123", time.Hour, WithIssuer("someone-else")).GenerateToken("u-1", "g-1", "d-1")
	require.NoError(t, err)

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"user_id": "u-1", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": mustSign(t, New("another-secret-456", time.Hour, WithIssuer("gameauth")), "u-1"),
		"tampered":     good[:len(good)-2] + "xx",
		"issuer":       otherIssuer,
		"alg none":     unsigned,
	}
	for name, token := range cases {
		_, err := svc.ValidateToken(token)
		assert.ErrorIs(t, err, domain.ErrTokenInvalid, name)
	}
}

func mustSign(t *testing.T, svc *Service, userID string) string {
	t.Helper()
	token, _, err := svc.GenerateToken(userID, "g-1", "d-1")
	require.NoError(t, err)
	return token
}
