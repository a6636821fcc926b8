package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"gameauth/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRoutesByProvider(t *testing.T) {
	reg := NewRegistry("dev")
	reg.Register("dev", NewDevVerifier("dev-identity-secret"))
	reg.Register("stub", VerifierFunc(func(ctx context.Context, assertion string) (*ExternalIdentity, error) {
		return &ExternalIdentity{ProviderUserID: "stub-" + assertion}, nil
	}))
	assert.Equal(t, []string{"dev", "stub"}, reg.Providers())

	assertion, err := SignDevAssertion("dev-identity-secret", "g-123", "p@example.com", time.Minute)
	require.NoError(t, err)

	id, err := reg.Verify(context.Background(), "", assertion)
	require.NoError(t, err)
	assert.Equal(t, "dev", id.Provider)
	assert.Equal(t, "g-123", id.ProviderUserID)
	assert.True(t, id.EmailVerified)

	id, err = reg.Verify(context.Background(), "STUB", "x")
	require.NoError(t, err)
	assert.Equal(t, "stub", id.Provider, "registry stamps the provider name")
	assert.Equal(t, "stub-x", id.ProviderUserID)
}

func TestRegistryFailuresAreInvalidAssertion(t *testing.T) {
	reg := NewRegistry("dev")
	reg.Register("dev", NewDevVerifier("dev-identity-secret"))
	reg.Register("broken", VerifierFunc(func(context.Context, string) (*ExternalIdentity, error) {
		return nil, errors.New("untagged failure")
	}))
	reg.Register("anonymous", VerifierFunc(func(context.Context, string) (*ExternalIdentity, error) {
		return &ExternalIdentity{}, nil
	}))

	wrongSecret, err := SignDevAssertion("another-secret", "g-1", "", time.Minute)
	require.NoError(t, err)
	expired, err := SignDevAssertion("dev-identity-secret", "g-1", "", -time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name, provider, assertion string
	}{
		{"unknown provider", "facebook", "x"},
		{"empty assertion", "dev", "  "},
		{"wrong secret", "dev", wrongSecret},
		{"expired", "dev", expired},
		{"untagged verifier error", "broken", "x"},
		{"no subject", "anonymous", "x"},
	}
	for _, tc := range cases {
		_, err := reg.Verify(context.Background(), tc.provider, tc.assertion)
		assert.ErrorIs(t, err, domain.ErrInvalidAssertion, tc.name)
	}
}
