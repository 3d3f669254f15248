package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/BradenHooton/warden/internal/middleware"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// Limits groups the per-client rate limits applied to public routes
type Limits struct {
	Auth middleware.RateLimitConfig
	OTP  middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	accessCodec *auth.Codec,
	limits Limits,
	ipConfig *pkghttp.IPConfig,
) {
	authLimit := middleware.RateLimitByIP(limits.Auth, ipConfig)
	otpLimit := middleware.RateLimitByIP(limits.OTP, ipConfig)

	router.Route("/api/auth", func(r chi.Router) {
		// Public routes
		r.With(authLimit).Post("/register", authHandler.Register)
		r.With(authLimit).Post("/login", authHandler.Login)
		r.With(authLimit).Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)

		r.With(otpLimit).Post("/forgot-password/request-otp", authHandler.ForgotPasswordRequestOTP)
		r.With(otpLimit).Post("/forgot-password/verify", authHandler.ForgotPasswordVerify)

		// Bearer token required
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(accessCodec))
			r.Use(middleware.RateLimitBySubject(limits.OTP, ipConfig))

			r.Post("/change-password/request-otp", authHandler.ChangePasswordRequestOTP)
			r.Post("/change-password/verify", authHandler.ChangePasswordVerify)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(accessCodec))
		r.Get("/api/users/me", userHandler.Me)
		r.Put("/api/users/me", userHandler.UpdateMe)
	})
}
