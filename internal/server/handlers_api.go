package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/donationpulse/internal/domain"
	apperrors "github.com/pscheid92/donationpulse/internal/errors"
	"github.com/pscheid92/donationpulse/internal/ledger"
)

type streamerRequest struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

func (s *Server) registerAPIRoutes() {
	viewer := s.requireRole(domain.RoleViewer)
	admin := s.requireRole(domain.RoleSuperAdmin)

	s.echo.GET("/api/data", s.handleGetData, viewer)
	s.echo.GET("/api/missions/:id/progress", s.handleMissionProgress, viewer)

	s.echo.POST("/api/donations", s.handleAddDonation, admin)
	s.echo.PUT("/api/donations/bulk", s.handleReplaceDonations, admin)
	s.echo.DELETE("/api/donations/:timestamp", s.handleDeleteDonation, admin)

	s.echo.POST("/api/streamers", s.handleAddStreamer, admin)
	s.echo.DELETE("/api/streamers/:name", s.handleRemoveStreamer, admin)

	s.echo.POST("/api/missions", s.handleCreateMission, admin)
	s.echo.PUT("/api/missions/:id/complete", s.handleCompleteMission, admin)
	s.echo.DELETE("/api/missions/:id", s.handleDeleteMission, admin)
	s.echo.POST("/api/missions/:id/adjustments", s.handleAddMissionAdjustment, admin)

	s.echo.POST("/api/settings", s.handleMergeSettings, admin)
	s.echo.POST("/api/settings/fix-nesting", s.handleFixSettingsNesting, admin)
	s.echo.POST("/api/force-reset", s.handleForceReset, admin)

	s.echo.POST("/api/broadcast/:event", s.handleBroadcast, admin)
}

func respond(c echo.Context, body any) error {
	if err := c.JSON(http.StatusOK, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func readBody(c echo.Context) (json.RawMessage, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, apperrors.ValidationError("failed to read request body")
	}
	return raw, nil
}

func (s *Server) handleGetData(c echo.Context) error {
	st, err := s.state.Snapshot(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to read state", err)
	}
	return respond(c, st)
}

func (s *Server) handleAddDonation(c echo.Context) error {
	var in ledger.DonationInput
	if err := c.Bind(&in); err != nil {
		return apperrors.ValidationError("invalid donation payload")
	}

	donation, err := s.state.AddDonation(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return respond(c, map[string]any{"success": true, "donation": donation})
}

func (s *Server) handleDeleteDonation(c echo.Context) error {
	timestamp, err := pathParam(c, "timestamp")
	if err != nil {
		return err
	}
	if err := s.state.DeleteDonation(c.Request().Context(), timestamp); err != nil {
		return err
	}
	return respond(c, map[string]bool{"success": true})
}

func (s *Server) handleReplaceDonations(c echo.Context) error {
	raw, err := readBody(c)
	if err != nil {
		return err
	}
	donations, err := ledger.DecodeDonations(raw)
	if err != nil {
		return err
	}
	if err := s.state.ReplaceDonations(c.Request().Context(), donations); err != nil {
		return err
	}
	return respond(c, map[string]any{"success": true, "count": len(donations)})
}

func (s *Server) handleAddStreamer(c echo.Context) error {
	var req streamerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid streamer payload")
	}

	name, err := s.state.AddStreamer(c.Request().Context(), req.Name, req.Emoji)
	if err != nil {
		return err
	}
	return respond(c, map[string]any{"success": true, "streamer": name})
}

func (s *Server) handleRemoveStreamer(c echo.Context) error {
	// RemoveStreamer decodes the raw segment itself.
	name := c.Param("name")
	if _, err := s.state.RemoveStreamer(c.Request().Context(), name); err != nil {
		return err
	}
	return respond(c, map[string]bool{"success": true})
}

func (s *Server) handleCreateMission(c echo.Context) error {
	var in ledger.MissionInput
	if err := c.Bind(&in); err != nil {
		return apperrors.ValidationError("invalid mission payload")
	}

	mission, err := s.state.CreateMission(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return respond(c, map[string]any{"success": true, "mission": mission})
}

func (s *Server) handleCompleteMission(c echo.Context) error {
	mission, err := s.state.CompleteMission(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, map[string]any{"success": true, "mission": mission})
}

func (s *Server) handleDeleteMission(c echo.Context) error {
	if err := s.state.DeleteMission(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return respond(c, map[string]bool{"success": true})
}

func (s *Server) handleAddMissionAdjustment(c echo.Context) error {
	var in ledger.AdjustmentInput
	if err := c.Bind(&in); err != nil {
		return apperrors.ValidationError("invalid adjustment payload")
	}

	adjustment, err := s.state.AddMissionAdjustment(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	return respond(c, map[string]any{"success": true, "adjustment": adjustment})
}

func (s *Server) handleMissionProgress(c echo.Context) error {
	progress, err := s.state.MissionProgress(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, progress)
}

func (s *Server) handleMergeSettings(c echo.Context) error {
	raw, err := readBody(c)
	if err != nil {
		return err
	}
	partial, err := ledger.DecodeSettings(raw)
	if err != nil {
		return err
	}

	settings, _, err := s.state.MergeSettings(c.Request().Context(), partial)
	if err != nil {
		return err
	}
	return respond(c, map[string]any{"success": true, "settings": settings})
}

func (s *Server) handleFixSettingsNesting(c echo.Context) error {
	settings, changed, err := s.state.FixSettingsNesting(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, map[string]any{"success": true, "changed": changed, "settings": settings})
}

func (s *Server) handleForceReset(c echo.Context) error {
	emojis, err := s.state.ForceReset(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, map[string]any{"success": true, "emojis": emojis})
}

func (s *Server) handleBroadcast(c echo.Context) error {
	raw, err := readBody(c)
	if err != nil {
		return err
	}
	if err := s.hub.Ephemeral(c.Param("event"), raw); err != nil {
		return err
	}
	return respond(c, map[string]bool{"success": true})
}

// pathParam returns the URL-decoded path parameter.
func pathParam(c echo.Context, name string) (string, error) {
	value, err := url.PathUnescape(c.Param(name))
	if err != nil {
		return "", apperrors.ValidationError("malformed path parameter").WithContext("param", name)
	}
	return value, nil
}
