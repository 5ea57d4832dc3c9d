package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	apperrors "github.com/pscheid92/donationpulse/internal/errors"
	"github.com/pscheid92/donationpulse/internal/logging"
)

const (
	bodyLimit      = "2M"
	loginRate      = 1.0
	loginRateBurst = 10
)

func (s *Server) registerRoutes() {
	s.echo.Use(logging.CorrelationMiddleware())
	s.echo.Use(logging.RequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(apperrors.Middleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		HSTSMaxAge:         63072000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.config.AllowOrigins(),
		AllowCredentials: !containsWildcard(s.config.AllowOrigins()),
	}))
	s.echo.Use(middleware.BodyLimit(bodyLimit))

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.registerAuthRoutes(newRateLimiter(loginRate, loginRateBurst))
	s.registerAPIRoutes()
	s.registerOverlayRoutes()
	s.registerPageRoutes()
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
