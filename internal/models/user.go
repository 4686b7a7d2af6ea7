package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the directory's view of an account. The matchmaking core treats
// most of it as read-only and only ever writes presence (IsActive,
// LastActive) and reputation fields.
type User struct {
	ID         string `gorm:"primaryKey" json:"id"`
	TelegramID string `gorm:"uniqueIndex" json:"telegramId"`
	Gender     string `json:"gender"`
	Age        int    `json:"age"`
	Rating     float64 `json:"rating"`

	IsActive   bool      `json:"isActive"`
	LastActive time.Time `json:"lastActive"`

	ReputationScore int       `json:"-"`
	Blocked         bool      `json:"-"`
	BlockedUntil    time.Time `json:"-"`
	BlockLevel      int       `json:"-"`
}

// BeforeCreate assigns a UUID if the caller didn't set one.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
