package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/donationpulse/internal/domain"
	apperrors "github.com/pscheid92/donationpulse/internal/errors"
)

// Session keys
const (
	sessionName             = "donationpulse-session"
	sessionKeyAuthenticated = "authenticated"
	sessionKeyRole          = "role"
	sessionKeyLoginTime     = "login_time"
)

const contextKeyRole = "role"

// authInfo is what a valid login session carries.
type authInfo struct {
	Role      domain.Role
	LoginTime time.Time
}

// currentAuth reads the login session. Sessions older than SessionMaxAge are
// rejected regardless of activity.
func (s *Server) currentAuth(c echo.Context) (authInfo, bool) {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return authInfo{}, false
	}
	return s.authFromSession(session)
}

func (s *Server) authFromSession(session *sessions.Session) (authInfo, bool) {
	if authenticated, _ := session.Values[sessionKeyAuthenticated].(bool); !authenticated {
		return authInfo{}, false
	}

	roleStr, _ := session.Values[sessionKeyRole].(string)
	role, ok := domain.ParseRole(roleStr)
	if !ok {
		return authInfo{}, false
	}

	loginMillis, ok := session.Values[sessionKeyLoginTime].(int64)
	if !ok {
		return authInfo{}, false
	}
	loginTime := time.UnixMilli(loginMillis).UTC()

	if !s.clock.Now().Before(loginTime.Add(s.config.SessionMaxAge)) {
		return authInfo{}, false
	}

	return authInfo{Role: role, LoginTime: loginTime}, true
}

// requireRole gates API routes: 401 without a valid session, 403 when the
// session's role is too weak.
func (s *Server) requireRole(required domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth, ok := s.currentAuth(c)
			if !ok {
				return apperrors.UnauthorizedError("authentication required")
			}
			if !auth.Role.Satisfies(required) {
				return apperrors.ForbiddenError("insufficient permissions").
					WithContext("required_role", string(required))
			}
			c.Set(contextKeyRole, auth.Role)
			return next(c)
		}
	}
}

func (s *Server) redirectToLogin(c echo.Context) error {
	slog.DebugContext(c.Request().Context(), "Redirecting to login", "path", c.Request().URL.Path)
	target := "/login?redirect=" + url.QueryEscape(c.Request().URL.RequestURI())
	return c.Redirect(http.StatusFound, target)
}
