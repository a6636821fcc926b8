package repository

import (
	"context"
	"time"

	"gameauth/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository stores token families and refresh tokens.
// Row locks are taken with SELECT ... FOR UPDATE on Postgres; SQLite ignores the locking
// clause and serialises writers instead.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerTx{db: tx})
	})
}

func (r *LedgerRepository) PurgeSpentTokens(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	res := r.db.WithContext(ctx).
		Where("expires_at < ? OR (is_valid = ? AND created_at < ?)", before, false, before).
		Delete(&domain.RefreshToken{})
	return res.RowsAffected, res.Error
}

type ledgerTx struct {
	db *gorm.DB
}

func (t *ledgerTx) CreateFamily(f *domain.TokenFamily) error {
	return classify(t.db.Create(f).Error)
}

func (t *ledgerTx) GetFamilyForUpdate(familyID string) (*domain.TokenFamily, error) {
	var f domain.TokenFamily
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("family_id = ?", familyID).
		First(&f).Error
	if err != nil {
		return nil, classify(err)
	}
	return &f, nil
}

func (t *ledgerTx) SaveFamily(f *domain.TokenFamily) error {
	return classify(t.db.Save(f).Error)
}

func (t *ledgerTx) InsertToken(tok *domain.RefreshToken) error {
	return classify(t.db.Create(tok).Error)
}

func (t *ledgerTx) FindValidToken(hash string) (*domain.TokenLookup, error) {
	var tok domain.RefreshToken
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("token_hash = ? AND is_valid = ?", hash, true).
		First(&tok).Error
	if err != nil {
		return nil, classify(err)
	}

	var fam domain.TokenFamily
	err = t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("family_id = ?", tok.FamilyID).
		First(&fam).Error
	if err != nil {
		return nil, classify(err)
	}

	var user domain.User
	if err := t.db.Select("provider", "external_id").Where("user_id = ?", tok.UserID).First(&user).Error; err != nil {
		return nil, classify(err)
	}

	return &domain.TokenLookup{
		Token:      tok,
		Family:     fam,
		Provider:   user.Provider,
		ExternalID: user.ExternalID,
	}, nil
}

func (t *ledgerTx) FindTokenByHash(hash string) (*domain.RefreshToken, error) {
	var tok domain.RefreshToken
	if err := t.db.Where("token_hash = ?", hash).First(&tok).Error; err != nil {
		return nil, classify(err)
	}
	return &tok, nil
}

func (t *ledgerTx) ConsumeToken(tokenID string, at time.Time) (bool, error) {
	res := t.db.Model(&domain.RefreshToken{}).
		Where("token_id = ? AND is_valid = ?", tokenID, true).
		Updates(map[string]any{
			"is_valid": false,
			"is_used":  true,
			"used_at":  at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *ledgerTx) RevokeFamily(familyID string, at time.Time, reason string) error {
	at = at.UTC()
	if err := t.db.Model(&domain.TokenFamily{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Updates(map[string]any{
			"revoked_at":    at,
			"revoke_reason": reason,
		}).Error; err != nil {
		return err
	}
	return t.db.Model(&domain.RefreshToken{}).
		Where("family_id = ? AND is_valid = ?", familyID, true).
		Update("is_valid", false).Error
}
