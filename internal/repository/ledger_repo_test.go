package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gameauth/internal/database/dbtest"
	"gameauth/internal/domain"
	"gameauth/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFamily(t *testing.T, ctx context.Context, users *repository.UserRepository, ledger *repository.LedgerRepository) (domain.TokenFamily, domain.RefreshToken) {
	t.Helper()
	u, err := users.Upsert(ctx, domain.UpsertUser{Provider: "dev", ExternalID: "p-1"}, time.Now())
	require.NoError(t, err)

	now := time.Now().UTC()
	fam := domain.TokenFamily{
		FamilyID: uuid.NewString(), UserID: u.UserID, CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour), MaxRefreshCount: 10,
	}
	tok := domain.RefreshToken{
		TokenID: uuid.NewString(), FamilyID: fam.FamilyID, UserID: u.UserID,
		TokenHash: "hash-" + uuid.NewString()[:8], JTI: uuid.NewString(),
		ExpiresAt: now.Add(time.Hour), IsValid: true, CreatedAt: now,
	}
	require.NoError(t, ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		if err := tx.CreateFamily(&fam); err != nil {
			return err
		}
		return tx.InsertToken(&tok)
	}))
	return fam, tok
}

func TestLedgerRepository_ConsumeOnce(t *testing.T) {
	db := dbtest.Open(t)
	users := repository.NewUserRepository(db)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()
	_, tok := seedFamily(t, ctx, users, ledger)

	err := ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		lookup, err := tx.FindValidToken(tok.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, "p-1", lookup.ExternalID)

		ok, err := tx.ConsumeToken(tok.TokenID, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.ConsumeToken(tok.TokenID, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	_ = ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		_, err := tx.FindValidToken(tok.TokenHash)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		stored, err := tx.FindTokenByHash(tok.TokenHash)
		require.NoError(t, err)
		assert.True(t, stored.IsUsed)
		assert.NotNil(t, stored.UsedAt)
		return nil
	})
}

func TestLedgerRepository_RollbackOnError(t *testing.T) {
	db := dbtest.Open(t)
	users := repository.NewUserRepository(db)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()
	_, tok := seedFamily(t, ctx, users, ledger)

	boom := errors.New("boom")
	err := ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		ok, err := tx.ConsumeToken(tok.TokenID, time.Now())
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_ = ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		_, err := tx.FindValidToken(tok.TokenHash)
		assert.NoError(t, err, "consume must have rolled back")
		return nil
	})
}

func TestLedgerRepository_DuplicateHash(t *testing.T) {
	db := dbtest.Open(t)
	users := repository.NewUserRepository(db)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()
	fam, tok := seedFamily(t, ctx, users, ledger)

	err := ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		dup := tok
		dup.TokenID = uuid.NewString()
		dup.FamilyID = fam.FamilyID
		return tx.InsertToken(&dup)
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestLedgerRepository_RevokeFamilyAndPurge(t *testing.T) {
	db := dbtest.Open(t)
	users := repository.NewUserRepository(db)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()
	fam, tok := seedFamily(t, ctx, users, ledger)

	require.NoError(t, ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		if err := tx.RevokeFamily(fam.FamilyID, time.Now(), "logout"); err != nil {
			return err
		}
		// second call keeps the first reason
		return tx.RevokeFamily(fam.FamilyID, time.Now(), "other")
	}))

	_ = ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		f, err := tx.GetFamilyForUpdate(fam.FamilyID)
		require.NoError(t, err)
		require.NotNil(t, f.RevokedAt)
		assert.Equal(t, "logout", *f.RevokeReason)

		_, err = tx.FindValidToken(tok.TokenHash)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})

	n, err := ledger.PurgeSpentTokens(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var families int64
	require.NoError(t, db.Model(&domain.TokenFamily{}).Count(&families).Error)
	assert.Equal(t, int64(1), families, "families are never deleted")
}
