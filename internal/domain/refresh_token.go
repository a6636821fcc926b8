package domain

import "time"

// TokenFamily is a chain of refresh tokens descended from one login.
//
// Security notes:
//   - ExpiresAt is a hard cap; rotation may only pull it earlier, never push it later.
//   - A family is dead once it expires, reaches MaxRefreshCount or is revoked.
//     Dead families are kept for forensics and are never deleted.
type TokenFamily struct {
	FamilyID        string     `json:"family_id" gorm:"column:family_id;primaryKey;size:36"`
	UserID          string     `json:"user_id" gorm:"column:user_id;size:36;index;not null"`
	DeviceID        *string    `json:"device_id,omitempty" gorm:"column:device_id;size:128"`
	CreatedAt       time.Time  `json:"created_at" gorm:"column:created_at;not null"`
	ExpiresAt       time.Time  `json:"expires_at" gorm:"column:expires_at;not null"`
	RefreshCount    int        `json:"refresh_count" gorm:"column:refresh_count;not null;default:0"`
	MaxRefreshCount int        `json:"max_refresh_count" gorm:"column:max_refresh_count;not null"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty" gorm:"column:last_refreshed_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty" gorm:"column:revoked_at"`
	RevokeReason    *string    `json:"revoke_reason,omitempty" gorm:"column:revoke_reason;size:64"`
}

func (TokenFamily) TableName() string { return "jwt_families" }

func (f *TokenFamily) IsExpired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

func (f *TokenFamily) IsExhausted() bool {
	return f.RefreshCount >= f.MaxRefreshCount
}

func (f *TokenFamily) IsRevoked() bool {
	return f.RevokedAt != nil
}

// BoundDevice returns the device the family is bound to, or "".
func (f *TokenFamily) BoundDevice() string {
	if f.DeviceID == nil {
		return ""
	}
	return *f.DeviceID
}

// RefreshToken is one single-use link of a family.
// Only the keyed hash of the raw value is stored.
type RefreshToken struct {
	TokenID   string     `json:"token_id" gorm:"column:token_id;primaryKey;size:36"`
	FamilyID  string     `json:"family_id" gorm:"column:family_id;size:36;index;not null"`
	UserID    string     `json:"user_id" gorm:"column:user_id;size:36;index;not null"`
	TokenHash string     `json:"-" gorm:"column:token_hash;size:64;uniqueIndex;not null"`
	JTI       string     `json:"jti" gorm:"column:jti;size:36;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"column:expires_at;index;not null"`
	IsValid   bool       `json:"is_valid" gorm:"column:is_valid;not null;default:true"`
	IsUsed    bool       `json:"is_used" gorm:"column:is_used;not null;default:false"`
	UsedAt    *time.Time `json:"used_at,omitempty" gorm:"column:used_at"`
	CreatedAt time.Time  `json:"created_at" gorm:"column:created_at"`
}

func (RefreshToken) TableName() string { return "jwt_tokens" }

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// TokenLookup is a valid token resolved together with its family and owner.
type TokenLookup struct {
	Token      RefreshToken
	Family     TokenFamily
	Provider   string
	ExternalID string
}
