package session

import (
	"context"

	"gameauth/internal/domain"
	"gameauth/internal/identity"
	"gameauth/internal/modules/audit"
	"gameauth/internal/modules/ledger"
	"gameauth/internal/pkg/jwt"
)

// IdentityVerifier resolves a provider assertion to an external identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, provider, assertion string) (*identity.ExternalIdentity, error)
}

// UserDirectory lists only the methods the orchestrator uses.
type UserDirectory interface {
	Upsert(ctx context.Context, in domain.UpsertUser) (*domain.User, error)
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	UpdateNickname(ctx context.Context, userID, nickname string) (*domain.User, error)
}

type AccessTokens interface {
	GenerateToken(userID, externalID, deviceID string) (string, *jwt.Claims, error)
	ValidateToken(token string) (*jwt.Claims, error)
}

// RefreshLedger is the refresh-token state machine.
type RefreshLedger interface {
	Rotate(ctx context.Context, userID, deviceID, familyID string) (*ledger.Issued, error)
	Verify(ctx context.Context, rawToken, deviceID string) (*ledger.Verified, error)
	RevokeFamily(ctx context.Context, familyID, reason string) error
	RevokeByToken(ctx context.Context, rawToken, reason string) (string, error)
}

type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}
