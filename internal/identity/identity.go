// Package identity verifies provider-issued identity assertions and resolves them to
// a stable external identity.
package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gameauth/internal/domain"
)

// ExternalIdentity is what a verified assertion proves about the caller.
type ExternalIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	EmailVerified  bool
}

// Verifier validates signature, audience and expiry of one provider's assertions.
// Failures are reported as INVALID_ASSERTION. Implementations are side-effect free
// apart from key caching.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (*ExternalIdentity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, assertion string) (*ExternalIdentity, error)

func (f VerifierFunc) Verify(ctx context.Context, assertion string) (*ExternalIdentity, error) {
	return f(ctx, assertion)
}

// Registry routes assertions to the verifier registered for their provider.
type Registry struct {
	verifiers       map[string]Verifier
	defaultProvider string
}

func NewRegistry(defaultProvider string) *Registry {
	return &Registry{
		verifiers:       make(map[string]Verifier),
		defaultProvider: strings.ToLower(strings.TrimSpace(defaultProvider)),
	}
}

func (r *Registry) Register(provider string, v Verifier) {
	r.verifiers[strings.ToLower(strings.TrimSpace(provider))] = v
}

func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Verify checks the assertion with the named provider, or the default one when provider is empty.
// The returned identity always carries the provider it was verified by.
func (r *Registry) Verify(ctx context.Context, provider, assertion string) (*ExternalIdentity, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = r.defaultProvider
	}
	v, ok := r.verifiers[provider]
	if !ok {
		return nil, domain.Wrap(domain.CodeInvalidAssertion, fmt.Errorf("unsupported provider %q", provider))
	}
	if strings.TrimSpace(assertion) == "" {
		return nil, domain.Wrap(domain.CodeInvalidAssertion, fmt.Errorf("empty assertion"))
	}

	id, err := v.Verify(ctx, assertion)
	if err != nil {
		if domain.CodeOf(err) == "" {
			err = domain.Wrap(domain.CodeInvalidAssertion, err)
		}
		return nil, err
	}
	if id.ProviderUserID == "" {
		return nil, domain.Wrap(domain.CodeInvalidAssertion, fmt.Errorf("assertion has no subject"))
	}
	id.Provider = provider
	return id, nil
}
