package session

import (
	"time"

	"gameauth/internal/domain"
)

type LoginRequest struct {
	ProviderToken string `json:"provider_token" validate:"required"`
	DeviceID      string `json:"device_id" validate:"required,deviceid"`
	Provider      string `json:"provider,omitempty" validate:"omitempty,max=32"`
}

// VerifyRequest carries either a refresh token (rotation) or only an access token (check).
type VerifyRequest struct {
	RefreshToken string `json:"refresh_token,omitempty" validate:"required_without=JWT"`
	DeviceID     string `json:"device_id,omitempty" validate:"omitempty,deviceid"`
	JWT          string `json:"jwt,omitempty"`
}

type NicknameRequest struct {
	JWT      string `json:"jwt,omitempty"`
	Nickname string `json:"nickname" validate:"required,nickname"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	DeviceID     string `json:"device_id,omitempty"`
}

// UserResponse is the public view of a directory record.
type UserResponse struct {
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	Email     string    `json:"email,omitempty"`
	Nickname  string    `json:"nickname,omitempty"`
	LastLogin time.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *domain.User) UserResponse {
	out := UserResponse{
		UserID:    u.UserID,
		Provider:  u.Provider,
		Nickname:  u.NicknameOrEmpty(),
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
	if u.Email != nil {
		out.Email = *u.Email
	}
	return out
}
