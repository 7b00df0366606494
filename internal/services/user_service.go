package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mpetrenko/auth-backend/internal/config"
	"github.com/mpetrenko/auth-backend/internal/dto"
	"github.com/mpetrenko/auth-backend/internal/gravatar"
	"github.com/mpetrenko/auth-backend/internal/mail"
	"github.com/mpetrenko/auth-backend/internal/models"
	"github.com/mpetrenko/auth-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken = errors.New("email already in use")
	// Same message for unknown email and wrong password.
	ErrInvalidCredentials = errors.New("Email or password is wrong")
	ErrNotVerified        = errors.New("Email not verified")
	ErrUserNotFound       = errors.New("User not found")
	ErrAlreadyVerified    = errors.New("Verification has already been passed")
)

type UserService struct {
	repo      *repository.Users
	mailer    mail.Sender
	jwtSecret string
	tokenTTL  time.Duration
}

func NewUserService(repo *repository.Users, mailer mail.Sender, cfg *config.Config) *UserService {
	return &UserService{
		repo:      repo,
		mailer:    mailer,
		jwtSecret: cfg.JWTSecret,
		tokenTTL:  cfg.TokenTTL,
	}
}

// Register creates an unverified user and emails the verification link.
// avatarURL is the ingested upload path, or empty to fall back to the
// gravatar-derived default. The record is persisted before the mail is
// sent; a mailer failure leaves an unverified account recoverable via
// resend.
func (s *UserService) Register(req *dto.RegisterRequest, avatarURL string) (*dto.RegisterResponse, error) {
	if _, err := s.repo.FindByEmail(req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing email: %w", err)
	}

	if avatarURL == "" {
		avatarURL = gravatar.URL(req.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verificationToken, err := newVerificationToken()
	if err != nil {
		return nil, err
	}

	subscription := req.Subscription
	if subscription == "" {
		subscription = models.SubscriptionStarter
	}

	user := models.User{
		ID:                uuid.New(),
		Email:             req.Email,
		Password:          string(hash),
		Subscription:      subscription,
		AvatarURL:         avatarURL,
		Verify:            false,
		VerificationToken: &verificationToken,
	}

	if err := s.repo.Create(&user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.mailer.SendVerification(user.Email, verificationToken); err != nil {
		return nil, err
	}

	return &dto.RegisterResponse{
		Email:        user.Email,
		Subscription: user.Subscription,
		AvatarURL:    user.AvatarURL,
	}, nil
}

// Verify exchanges a single-use verification token for verified status.
func (s *UserService) Verify(token string) error {
	user, err := s.repo.FindByVerificationToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to look up verification token: %w", err)
	}

	if err := s.repo.MarkVerified(user.ID); err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	return nil
}

// ResendVerification re-sends the original verification token; the token is
// not rotated.
func (s *UserService) ResendVerification(email string) error {
	user, err := s.repo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to look up email: %w", err)
	}

	if user.Verify || user.VerificationToken == nil {
		return ErrAlreadyVerified
	}

	return s.mailer.SendVerification(user.Email, *user.VerificationToken)
}

// Login verifies credentials, issues a bearer token and mirrors it in the
// user record so logout can invalidate it early.
func (s *UserService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.repo.FindByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	if !user.Verify {
		return nil, ErrNotVerified
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.signToken(user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetSessionToken(user.ID, token); err != nil {
		return nil, fmt.Errorf("failed to store session token: %w", err)
	}

	return &dto.LoginResponse{
		Token: token,
		User: dto.UserProfile{
			Email:        user.Email,
			Subscription: user.Subscription,
			AvatarURL:    user.AvatarURL,
		},
	}, nil
}

// Current returns the profile of an already-resolved user, no store access.
func (s *UserService) Current(user *models.User) *dto.UserProfile {
	return &dto.UserProfile{
		Email:        user.Email,
		Subscription: user.Subscription,
		AvatarURL:    user.AvatarURL,
	}
}

func (s *UserService) Logout(userID uuid.UUID) error {
	if err := s.repo.ClearSessionToken(userID); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	return nil
}

// UpdateAvatar stores the newly ingested avatar path on whichever user holds
// the presented session token.
func (s *UserService) UpdateAvatar(sessionToken, avatarURL string) (string, error) {
	user, err := s.repo.UpdateAvatarBySessionToken(sessionToken, avatarURL)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to update avatar: %w", err)
	}
	return user.AvatarURL, nil
}

func (s *UserService) signToken(userID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(s.tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func newVerificationToken() (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(rawBytes), nil
}
