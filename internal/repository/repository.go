package repository

import (
	"context"
	"errors"
	"time"

	"gameauth/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// UserStore persists the user directory.
type UserStore interface {
	// Upsert creates or merges the user keyed on (provider, external id) in one transaction.
	// Nil Email/Nickname keep the stored values; last_login is always set to at.
	Upsert(ctx context.Context, in domain.UpsertUser, at time.Time) (*domain.User, error)
	FindByExternalID(ctx context.Context, provider, externalID string) (*domain.User, error)
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	UpdateNickname(ctx context.Context, userID, nickname string, at time.Time) (*domain.User, error)
	SetBan(ctx context.Context, userID string, banned bool, reason *string, at time.Time) (*domain.User, error)
	Ping(ctx context.Context) error
}

// LedgerStore runs refresh-token ledger work inside a single transaction.
// If fn returns an error everything it did is rolled back.
type LedgerStore interface {
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
	// PurgeSpentTokens deletes token rows that can never be presented successfully again
	// (invalidated or expired) and are older than before. Families are never deleted.
	PurgeSpentTokens(ctx context.Context, before time.Time) (int64, error)
}

// LedgerTx is the set of operations available inside a ledger transaction.
type LedgerTx interface {
	CreateFamily(f *domain.TokenFamily) error
	// GetFamilyForUpdate loads the family and holds a row lock until the transaction ends.
	GetFamilyForUpdate(familyID string) (*domain.TokenFamily, error)
	SaveFamily(f *domain.TokenFamily) error
	InsertToken(t *domain.RefreshToken) error
	// FindValidToken resolves a still-valid token by hash with its family and owner, locking both rows.
	FindValidToken(hash string) (*domain.TokenLookup, error)
	// FindTokenByHash returns the token in any state.
	FindTokenByHash(hash string) (*domain.RefreshToken, error)
	// ConsumeToken flips a valid token to used. It reports false when another
	// transaction consumed it first.
	ConsumeToken(tokenID string, at time.Time) (bool, error)
	// RevokeFamily marks the family revoked and invalidates all of its live tokens. Idempotent.
	RevokeFamily(familyID string, at time.Time, reason string) error
}

// SessionHistoryStore is the append-only audit sink.
type SessionHistoryStore interface {
	Append(ctx context.Context, e *domain.SessionHistoryEntry) error
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}
