package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mpetrenko/auth-backend/internal/config"
	"github.com/mpetrenko/auth-backend/internal/handlers"
	"github.com/mpetrenko/auth-backend/internal/middleware"
	"github.com/mpetrenko/auth-backend/internal/repository"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	repo *repository.Users,
	userHandler *handlers.UserHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	api.Get("/health", healthHandler.Check)

	users := api.Group("/users")

	// Public
	users.Post("/register", userHandler.Register)
	users.Get("/verify/:token", userHandler.VerifyEmail)
	users.Post("/verify", userHandler.ResendVerification)
	users.Post("/login", userHandler.Login)

	// Protected (valid JWT + token still held as the user's session)
	jwtProtected := middleware.JWTProtected(cfg)
	resolveUser := middleware.ResolveUser(repo)
	users.Get("/current", jwtProtected, resolveUser, userHandler.Current)
	users.Post("/logout", jwtProtected, resolveUser, userHandler.Logout)
	users.Patch("/avatars", jwtProtected, resolveUser, userHandler.UpdateAvatar)
}
