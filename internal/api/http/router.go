package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fanportal/portal-service/internal/api/http/handlers"
	"github.com/fanportal/portal-service/internal/auth"
	"github.com/fanportal/portal-service/internal/domain"
	"github.com/fanportal/portal-service/internal/realtime"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
	Signature      *SignatureVerifier
	VersionGuard   *auth.VersionGuard
	Hub            *realtime.Hub
	Logger         *zap.Logger
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// signed request pipeline guards every mutating route
	app.Use(cfg.Signature.Handle)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Get("/refresh", cfg.AuthMiddleware.Handle, cfg.Auth.Refresh)
	authGroup.Get("/profile", cfg.AuthMiddleware.Handle, cfg.Auth.Profile)

	userGroup := app.Group("/user")
	userGroup.Get("/email/verify/:id", cfg.Users.ConfirmVerification)
	userGroup.Post("/has-username", cfg.Users.HasUsername)
	userGroup.Post("/has-email", cfg.Users.HasEmail)
	userGroup.Post("/email/send", cfg.VersionGuard.Handle, cfg.AuthMiddleware.Handle, cfg.Users.SendVerification)
	userGroup.Patch("/:id", cfg.AuthMiddleware.Handle, cfg.Users.Update)

	admin := userGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Get("/", cfg.Users.List)
	admin.Get("/:id", cfg.Users.Get)
	admin.Delete("/:id", cfg.Users.Remove)

	app.Get("/ws", realtime.Upgrade, realtime.Handler(cfg.Hub, cfg.Logger))
}
