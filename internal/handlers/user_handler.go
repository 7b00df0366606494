package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/mpetrenko/auth-backend/internal/avatar"
	"github.com/mpetrenko/auth-backend/internal/dto"
	"github.com/mpetrenko/auth-backend/internal/middleware"
	"github.com/mpetrenko/auth-backend/internal/services"
)

// Uploaded file field name, kept from the original API.
const avatarFileField = "avatarURL"

const maxUploadSize = 5 * 1024 * 1024

type UserHandler struct {
	userService *services.UserService
	ingestor    *avatar.Ingestor
}

func NewUserHandler(userService *services.UserService, ingestor *avatar.Ingestor) *UserHandler {
	return &UserHandler{userService: userService, ingestor: ingestor}
}

// Register handles POST /users/register: multipart form (fields + optional
// avatar file) or JSON body.
func (h *UserHandler) Register(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Missing fields")
	}

	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	avatarURL, err := h.receiveUpload(c)
	if err != nil {
		return err
	}

	resp, err := h.userService.Register(&req, avatarURL)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("%s already in use", req.Email))
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// VerifyEmail handles GET /users/verify/:token.
func (h *UserHandler) VerifyEmail(c *fiber.Ctx) error {
	if err := h.userService.Verify(c.Params("token")); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}

	return c.JSON(dto.MessageResponse{Message: "Verification successful"})
}

// ResendVerification handles POST /users/verify.
func (h *UserHandler) ResendVerification(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Missing fields")
	}

	var req dto.ResendVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.userService.ResendVerification(req.Email); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if errors.Is(err, services.ErrAlreadyVerified) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}

	return c.JSON(dto.MessageResponse{Message: "Verification email sent"})
}

// Login handles POST /users/login.
func (h *UserHandler) Login(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Missing fields")
	}

	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	resp, err := h.userService.Login(&req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrNotVerified) {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		return err
	}

	return c.JSON(resp)
}

// Current handles GET /users/current.
func (h *UserHandler) Current(c *fiber.Ctx) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Not authorized")
	}

	return c.JSON(h.userService.Current(user))
}

// Logout handles POST /users/logout.
func (h *UserHandler) Logout(c *fiber.Ctx) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Not authorized")
	}

	if err := h.userService.Logout(user.ID); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateAvatar handles PATCH /users/avatars. The user row is matched by the
// presented session token, not by id.
func (h *UserHandler) UpdateAvatar(c *fiber.Ctx) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Not authorized")
	}

	avatarURL := user.AvatarURL
	if uploaded, err := h.receiveUpload(c); err != nil {
		return err
	} else if uploaded != "" {
		avatarURL = uploaded
	}

	updated, err := h.userService.UpdateAvatar(user.SessionToken, avatarURL)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}

	return c.JSON(dto.AvatarResponse{AvatarURL: updated})
}

// receiveUpload saves an optional multipart avatar file into the temp dir
// and runs ingestion (resize + relocate). Returns "" when no file was sent.
func (h *UserHandler) receiveUpload(c *fiber.Ctx) (string, error) {
	file, err := c.FormFile(avatarFileField)
	if err != nil {
		// The file part is optional on every route that accepts it.
		return "", nil
	}

	if file.Size > maxUploadSize {
		return "", fiber.NewError(fiber.StatusBadRequest, "File must be less than 5MB")
	}
	if err := avatar.CheckExtension(file.Filename); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	tempPath := h.ingestor.TempPath(file.Filename)
	if err := c.SaveFile(file, tempPath); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	stored, err := h.ingestor.Ingest(tempPath)
	if err != nil {
		return "", err
	}
	return stored, nil
}
