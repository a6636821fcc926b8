package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gameauth/internal/domain"
	"gameauth/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestStore_UpsertMergesNonNilFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.Upsert(ctx, domain.UpsertUser{Provider: "google", ExternalID: "g-1", Email: strPtr("a@b.c"), Nickname: strPtr("one")}, time.Now())
	require.NoError(t, err)
	b, err := s.Upsert(ctx, domain.UpsertUser{Provider: "google", ExternalID: "g-1", Nickname: strPtr("two")}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, a.UserID, b.UserID)
	assert.Equal(t, "a@b.c", *b.Email)
	assert.Equal(t, "two", *b.Nickname)

	// returned records are copies
	*b.Nickname = "mutated"
	again, err := s.FindByID(ctx, a.UserID)
	require.NoError(t, err)
	assert.Equal(t, "two", *again.Nickname)
}

func TestStore_TxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.Upsert(ctx, domain.UpsertUser{Provider: "dev", ExternalID: "x"}, time.Now())
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(tx repository.LedgerTx) error {
		require.NoError(t, tx.CreateFamily(&domain.TokenFamily{FamilyID: "f1", UserID: u.UserID, MaxRefreshCount: 1}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.FamilyCount())
}

func TestStore_CancelledContextDoesNotCommit(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(tx repository.LedgerTx) error {
		cancel()
		return tx.CreateFamily(&domain.TokenFamily{FamilyID: "f1", MaxRefreshCount: 1})
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.FamilyCount())
}

func TestStore_ConsumeAndRevoke(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.Upsert(ctx, domain.UpsertUser{Provider: "dev", ExternalID: "x"}, time.Now())
	require.NoError(t, err)

	now := time.Now().UTC()
	err = s.WithinTx(ctx, func(tx repository.LedgerTx) error {
		if err := tx.CreateFamily(&domain.TokenFamily{FamilyID: "f1", UserID: u.UserID, ExpiresAt: now.Add(time.Hour), MaxRefreshCount: 5}); err != nil {
			return err
		}
		if err := tx.InsertToken(&domain.RefreshToken{TokenID: "t1", FamilyID: "f1", UserID: u.UserID, TokenHash: "h1", IsValid: true, ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
			return err
		}
		return tx.InsertToken(&domain.RefreshToken{TokenID: "t2", FamilyID: "f1", UserID: u.UserID, TokenHash: "h1", IsValid: true})
	})
	require.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Equal(t, 0, s.FamilyCount(), "duplicate hash must fail the whole tx")

	require.NoError(t, s.WithinTx(ctx, func(tx repository.LedgerTx) error {
		if err := tx.CreateFamily(&domain.TokenFamily{FamilyID: "f1", UserID: u.UserID, ExpiresAt: now.Add(time.Hour), MaxRefreshCount: 5}); err != nil {
			return err
		}
		return tx.InsertToken(&domain.RefreshToken{TokenID: "t1", FamilyID: "f1", UserID: u.UserID, TokenHash: "h1", IsValid: true, ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx repository.LedgerTx) error {
		lookup, err := tx.FindValidToken("h1")
		require.NoError(t, err)
		assert.Equal(t, "x", lookup.ExternalID)

		ok, err := tx.ConsumeToken("t1", now)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, _ = tx.ConsumeToken("t1", now)
		assert.False(t, ok)
		return tx.RevokeFamily("f1", now, "logout")
	}))

	f, ok := s.Family("f1")
	require.True(t, ok)
	require.NotNil(t, f.RevokedAt)

	n, err := s.PurgeSpentTokens(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_HistoryPrune(t *testing.T) {
	s := New()
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, s.Append(ctx, &domain.SessionHistoryEntry{Action: domain.ActionLogin, Result: domain.ResultSuccess, LoginAt: old}))
	require.NoError(t, s.Append(ctx, &domain.SessionHistoryEntry{Action: domain.ActionLogin, Result: domain.ResultFailure, LoginAt: time.Now()}))

	n, err := s.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, s.History(), 1)
	assert.Equal(t, domain.ResultFailure, s.History()[0].Result)
}
