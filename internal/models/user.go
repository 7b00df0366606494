package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SubscriptionStarter  = "starter"
	SubscriptionPro      = "pro"
	SubscriptionBusiness = "business"
)

// User is the identity record. Password holds the bcrypt hash, never the
// plaintext. VerificationToken is nulled once the account is verified;
// SessionToken mirrors the most recently issued bearer token so logout can
// invalidate it before its natural expiry.
type User struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email             string    `gorm:"not null;size:255;uniqueIndex" json:"email"`
	Password          string    `gorm:"not null" json:"-"`
	Subscription      string    `gorm:"size:20;default:'starter'" json:"subscription"`
	AvatarURL         string    `gorm:"size:512" json:"avatarURL"`
	Verify            bool      `gorm:"not null;default:false" json:"verify"`
	VerificationToken *string   `gorm:"size:64;index" json:"-"`
	SessionToken      string    `gorm:"size:512;index" json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
