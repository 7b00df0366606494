package repository

import (
	"github.com/google/uuid"
	"github.com/mpetrenko/auth-backend/internal/models"
	"gorm.io/gorm"
)

// Users wraps the user table behind the exact lookups the auth workflow
// relies on: by email (registration, login, resend), by verification token
// (verify) and by session token (avatar update).
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (r *Users) Create(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *Users) FindByID(id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Users) FindByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Users) FindByVerificationToken(token string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("verification_token = ?", token).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Users) FindBySessionToken(token string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("session_token = ?", token).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// MarkVerified flips the verify flag and clears the single-use token in one
// update, keeping the verified-implies-no-token invariant.
func (r *Users) MarkVerified(id uuid.UUID) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"verify":             true,
		"verification_token": nil,
	}).Error
}

func (r *Users) SetSessionToken(id uuid.UUID, token string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).
		Update("session_token", token).Error
}

func (r *Users) ClearSessionToken(id uuid.UUID) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).
		Update("session_token", "").Error
}

// UpdateAvatarBySessionToken updates the avatar of whichever user currently
// holds the given session token and returns the updated record.
// gorm.ErrRecordNotFound when no user holds it.
func (r *Users) UpdateAvatarBySessionToken(token, avatarURL string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("session_token = ?", token).First(&user).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&user).Update("avatar_url", avatarURL).Error; err != nil {
		return nil, err
	}
	user.AvatarURL = avatarURL
	return &user, nil
}
