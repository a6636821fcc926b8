package domain

import "time"

// User is the directory record for one external identity.
// (Provider, ExternalID) is the natural key; UserID is generated on first login.
type User struct {
	UserID     string    `json:"user_id" gorm:"column:user_id;primaryKey;size:36"`
	Provider   string    `json:"provider" gorm:"column:provider;size:32;not null;uniqueIndex:idx_users_provider_external"`
	ExternalID string    `json:"external_id" gorm:"column:external_id;size:191;not null;uniqueIndex:idx_users_provider_external"`
	Email      *string   `json:"email,omitempty" gorm:"column:email;size:320"`
	Nickname   *string   `json:"nickname,omitempty" gorm:"column:nickname;size:64"`
	IsBanned   bool      `json:"is_banned" gorm:"column:is_banned;not null;default:false"`
	BanReason  *string   `json:"ban_reason,omitempty" gorm:"column:ban_reason;size:255"`
	LastLogin  time.Time `json:"last_login" gorm:"column:last_login;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (User) TableName() string { return "users" }

// UpsertUser carries the incoming identity for Directory.Upsert.
// Nil Email/Nickname leave the stored values untouched.
type UpsertUser struct {
	Provider   string
	ExternalID string
	Email      *string
	Nickname   *string
}

// NicknameOrEmpty returns the nickname or "" when unset.
func (u *User) NicknameOrEmpty() string {
	if u.Nickname == nil {
		return ""
	}
	return *u.Nickname
}
