package middleware

import (
	"errors"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mpetrenko/auth-backend/internal/config"
	"github.com/mpetrenko/auth-backend/internal/models"
	"github.com/mpetrenko/auth-backend/internal/repository"
)

const currentUserKey = "currentUser"

// JWTProtected validates the bearer token signature and expiry.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return fiber.NewError(fiber.StatusUnauthorized, "Not authorized")
		},
	})
}

// ResolveUser runs after JWTProtected: it loads the user named by the token's
// id claim and rejects tokens that are no longer the user's stored session
// token (invalidated by logout or superseded by a newer login). The resolved
// user value is handed to the handler via locals.
func ResolveUser(repo *repository.Users) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Not authorized")
		}

		userID, err := userIDFromClaims(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Not authorized")
		}

		user, err := repo.FindByID(userID)
		if err != nil || user.SessionToken != token.Raw {
			return fiber.NewError(fiber.StatusUnauthorized, "Not authorized")
		}

		c.Locals(currentUserKey, user)
		return c.Next()
	}
}

// CurrentUser returns the user resolved by ResolveUser.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals(currentUserKey).(*models.User)
	if !ok {
		return nil, errors.New("no authenticated user in context")
	}
	return user, nil
}

func userIDFromClaims(token *jwt.Token) (uuid.UUID, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("invalid claims")
	}

	id, ok := claims["id"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing id claim")
	}

	return uuid.Parse(id)
}
