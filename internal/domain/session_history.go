package domain

import "time"

type SessionAction string

const (
	ActionLogin   SessionAction = "login"
	ActionRefresh SessionAction = "refresh"
	ActionVerify  SessionAction = "verify"
	ActionLogout  SessionAction = "logout"
)

type SessionResult string

const (
	ResultSuccess SessionResult = "success"
	ResultFailure SessionResult = "failure"
)

// SessionHistoryEntry is an append-only audit row. The service never reads it back.
type SessionHistoryEntry struct {
	ID         int64         `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserID     *string       `json:"user_id,omitempty" gorm:"column:user_id;size:36;index"`
	Provider   string        `json:"provider" gorm:"column:provider;size:32"`
	ExternalID *string       `json:"external_id,omitempty" gorm:"column:external_id;size:191"`
	DeviceID   string        `json:"device_id" gorm:"column:device_id;size:128"`
	ClientIP   string        `json:"client_ip" gorm:"column:client_ip;size:64"`
	UserAgent  string        `json:"user_agent" gorm:"column:user_agent;size:512"`
	Action     SessionAction `json:"action" gorm:"column:action;size:16;not null"`
	Result     SessionResult `json:"result" gorm:"column:result;size:16;not null"`
	Reason     string        `json:"reason" gorm:"column:reason;size:64"`
	LoginAt    time.Time     `json:"login_at" gorm:"column:login_at;index;not null"`
	CreatedAt  time.Time     `json:"created_at" gorm:"column:created_at"`
}

func (SessionHistoryEntry) TableName() string { return "session_history" }
