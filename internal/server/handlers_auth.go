package server

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/donationpulse/internal/domain"
	apperrors "github.com/pscheid92/donationpulse/internal/errors"
	"github.com/pscheid92/donationpulse/internal/metrics"
)

type loginRequest struct {
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) registerAuthRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.POST("/api/login", s.handleLogin, rateLimiter)
	s.echo.POST("/api/logout", s.handleLogout)
	s.echo.GET("/api/auth-status", s.handleAuthStatus)
}

func (s *Server) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	req.Role = strings.TrimSpace(req.Role)
	if req.Password == "" || req.Role == "" {
		return apperrors.ValidationError("password and role are required")
	}

	role, ok := domain.ParseRole(req.Role)
	if !ok {
		metrics.LoginAttemptsTotal.WithLabelValues("unknown", "invalid_role").Inc()
		return apperrors.ValidationError("unknown role").WithContext("role", req.Role)
	}

	expected := s.passwords[role]
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(expected)) != 1 {
		metrics.LoginAttemptsTotal.WithLabelValues(string(role), "failure").Inc()
		slog.WarnContext(ctx, "Login failed", "role", role, "remote_ip", c.RealIP())
		return apperrors.UnauthorizedError("invalid password")
	}

	// A fresh session replaces whatever the client sent.
	session, err := s.sessionStore.New(c.Request(), sessionName)
	if err != nil {
		slog.DebugContext(ctx, "Discarding undecodable session cookie", "error", err)
	}
	session.Values[sessionKeyAuthenticated] = true
	session.Values[sessionKeyRole] = string(role)
	session.Values[sessionKeyLoginTime] = s.clock.Now().UnixMilli()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues(string(role), "success").Inc()
	slog.InfoContext(ctx, "Login succeeded", "role", role)

	response := map[string]any{"success": true, "role": role}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.DebugContext(c.Request().Context(), "Logout with undecodable session", "error", err)
	}
	session.Values = map[any]any{}
	session.Options.MaxAge = -1

	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save logout session", err)
	}

	if err := c.JSON(http.StatusOK, map[string]bool{"success": true}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAuthStatus(c echo.Context) error {
	response := map[string]any{"authenticated": false}
	if auth, ok := s.currentAuth(c); ok {
		response["authenticated"] = true
		response["role"] = auth.Role
		response["loginTime"] = domain.FormatTimestamp(auth.LoginTime)
	}

	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
