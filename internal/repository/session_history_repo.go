package repository

import (
	"context"
	"time"

	"gameauth/internal/domain"

	"gorm.io/gorm"
)

type SessionHistoryRepository struct {
	db *gorm.DB
}

func NewSessionHistoryRepository(db *gorm.DB) *SessionHistoryRepository {
	return &SessionHistoryRepository{db: db}
}

func (r *SessionHistoryRepository) Append(ctx context.Context, e *domain.SessionHistoryEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *SessionHistoryRepository) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("login_at < ?", before.UTC()).
		Delete(&domain.SessionHistoryEntry{})
	return res.RowsAffected, res.Error
}
