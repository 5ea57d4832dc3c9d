package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/donationpulse/internal/domain"
)

const loginPage = "login.html"

func (s *Server) registerPageRoutes() {
	s.echo.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/overlay")
	})
	s.echo.GET("/login", s.handleLoginPage)
	s.echo.GET("/*", s.handlePage)
}

func (s *Server) handleLoginPage(c echo.Context) error {
	return s.serveStatic(c, loginPage)
}

// handlePage serves a file from the static directory after checking the role
// its name requires. "/table" resolves to table.html when no such file exists.
func (s *Server) handlePage(c echo.Context) error {
	name := path.Clean("/" + c.Param("*"))

	if required, gated := pageRole(name); gated {
		if auth, ok := s.currentAuth(c); !ok || !auth.Role.Satisfies(required) {
			return s.redirectToLogin(c)
		}
	}

	return s.serveStatic(c, name)
}

// pageRole maps a page path to the role it requires. Table pages need a
// viewer; admin and manager pages need a super-admin. Everything else,
// overlays included, is public.
func pageRole(name string) (domain.Role, bool) {
	base := strings.ToLower(strings.TrimPrefix(name, "/"))
	base = strings.TrimPrefix(base, "donation-")

	switch {
	case strings.HasPrefix(base, "admin"), strings.HasPrefix(base, "manager"):
		return domain.RoleSuperAdmin, true
	case strings.HasPrefix(base, "table"):
		return domain.RoleViewer, true
	default:
		return "", false
	}
}

func (s *Server) serveStatic(c echo.Context, name string) error {
	root := s.config.StaticDir
	file := filepath.Join(root, filepath.FromSlash(path.Clean("/"+name)))

	if filepath.Ext(file) == "" {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			file += ".html"
		}
	}

	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		return echo.ErrNotFound
	}
	return c.File(file)
}
