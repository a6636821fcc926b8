package repository

import (
	"context"
	"strings"
	"time"

	"gameauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Upsert(ctx context.Context, in domain.UpsertUser, at time.Time) (*domain.User, error) {
	at = at.UTC()
	row := domain.User{
		UserID:     uuid.NewString(),
		Provider:   strings.TrimSpace(in.Provider),
		ExternalID: strings.TrimSpace(in.ExternalID),
		Email:      normalizeEmail(in.Email),
		Nickname:   in.Nickname,
		LastLogin:  at,
		CreatedAt:  at,
		UpdatedAt:  at,
	}

	var out domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// single statement; concurrent logins for one identity merge instead of racing an insert
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}, {Name: "external_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"email":      gorm.Expr("COALESCE(excluded.email, users.email)"),
				"nickname":   gorm.Expr("COALESCE(excluded.nickname, users.nickname)"),
				"last_login": gorm.Expr("excluded.last_login"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("provider = ? AND external_id = ?", row.Provider, row.ExternalID).First(&out).Error
	})
	if err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

func (r *UserRepository) FindByExternalID(ctx context.Context, provider, externalID string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&u).Error
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (r *UserRepository) UpdateNickname(ctx context.Context, userID, nickname string, at time.Time) (*domain.User, error) {
	return r.update(ctx, userID, map[string]any{
		"nickname":   nickname,
		"updated_at": at.UTC(),
	})
}

func (r *UserRepository) SetBan(ctx context.Context, userID string, banned bool, reason *string, at time.Time) (*domain.User, error) {
	updates := map[string]any{
		"is_banned":  banned,
		"ban_reason": nil,
		"updated_at": at.UTC(),
	}
	if banned && reason != nil {
		updates["ban_reason"] = *reason
	}
	return r.update(ctx, userID, updates)
}

func (r *UserRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *UserRepository) update(ctx context.Context, userID string, updates map[string]any) (*domain.User, error) {
	var out domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).Where("user_id = ?", userID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("user_id = ?", userID).First(&out).Error
	})
	if err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	if v == "" {
		return nil
	}
	return &v
}
