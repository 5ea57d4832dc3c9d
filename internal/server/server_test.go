package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/donationpulse/internal/config"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/ledger"
	"github.com/stretchr/testify/require"
)

const (
	testViewerPassword = "viewer-secret"
	testAdminPassword  = "admin-secret"
)

// --- Mock implementations ---

type mockState struct {
	snapshotFn         func(ctx context.Context) (*domain.State, error)
	addDonationFn      func(ctx context.Context, in ledger.DonationInput) (domain.Donation, error)
	deleteDonationFn   func(ctx context.Context, timestamp string) error
	replaceDonationsFn func(ctx context.Context, donations []domain.Donation) error
	addStreamerFn      func(ctx context.Context, name, emoji string) (string, error)
	removeStreamerFn   func(ctx context.Context, name string) (string, error)
	createMissionFn    func(ctx context.Context, in ledger.MissionInput) (domain.Mission, error)
	completeMissionFn  func(ctx context.Context, id string) (domain.Mission, error)
	deleteMissionFn    func(ctx context.Context, id string) error
	addAdjustmentFn    func(ctx context.Context, missionID string, in ledger.AdjustmentInput) (domain.MissionAdjustment, error)
	progressFn         func(ctx context.Context, id string) (domain.MissionProgress, error)
	mergeSettingsFn    func(ctx context.Context, partial domain.Settings) (domain.Settings, bool, error)
	fixNestingFn       func(ctx context.Context) (domain.Settings, bool, error)
	forceResetFn       func(ctx context.Context) (map[string]string, error)
}

func (m *mockState) Snapshot(ctx context.Context) (*domain.State, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx)
	}
	return domain.NewDefaults("").State(), nil
}

func (m *mockState) AddDonation(ctx context.Context, in ledger.DonationInput) (domain.Donation, error) {
	if m.addDonationFn != nil {
		return m.addDonationFn(ctx, in)
	}
	return domain.Donation{}, errors.New("not implemented")
}

func (m *mockState) DeleteDonation(ctx context.Context, timestamp string) error {
	if m.deleteDonationFn != nil {
		return m.deleteDonationFn(ctx, timestamp)
	}
	return nil
}

func (m *mockState) ReplaceDonations(ctx context.Context, donations []domain.Donation) error {
	if m.replaceDonationsFn != nil {
		return m.replaceDonationsFn(ctx, donations)
	}
	return nil
}

func (m *mockState) AddStreamer(ctx context.Context, name, emoji string) (string, error) {
	if m.addStreamerFn != nil {
		return m.addStreamerFn(ctx, name, emoji)
	}
	return name, nil
}

func (m *mockState) RemoveStreamer(ctx context.Context, name string) (string, error) {
	if m.removeStreamerFn != nil {
		return m.removeStreamerFn(ctx, name)
	}
	return name, nil
}

func (m *mockState) CreateMission(ctx context.Context, in ledger.MissionInput) (domain.Mission, error) {
	if m.createMissionFn != nil {
		return m.createMissionFn(ctx, in)
	}
	return domain.Mission{}, errors.New("not implemented")
}

func (m *mockState) CompleteMission(ctx context.Context, id string) (domain.Mission, error) {
	if m.completeMissionFn != nil {
		return m.completeMissionFn(ctx, id)
	}
	return domain.Mission{}, domain.NotFound("mission not found")
}

func (m *mockState) DeleteMission(ctx context.Context, id string) error {
	if m.deleteMissionFn != nil {
		return m.deleteMissionFn(ctx, id)
	}
	return nil
}

func (m *mockState) AddMissionAdjustment(ctx context.Context, missionID string, in ledger.AdjustmentInput) (domain.MissionAdjustment, error) {
	if m.addAdjustmentFn != nil {
		return m.addAdjustmentFn(ctx, missionID, in)
	}
	return domain.MissionAdjustment{}, domain.NotFound("mission not found")
}

func (m *mockState) MissionProgress(ctx context.Context, id string) (domain.MissionProgress, error) {
	if m.progressFn != nil {
		return m.progressFn(ctx, id)
	}
	return domain.MissionProgress{}, domain.NotFound("mission not found")
}

func (m *mockState) MergeSettings(ctx context.Context, partial domain.Settings) (domain.Settings, bool, error) {
	if m.mergeSettingsFn != nil {
		return m.mergeSettingsFn(ctx, partial)
	}
	return partial, true, nil
}

func (m *mockState) FixSettingsNesting(ctx context.Context) (domain.Settings, bool, error) {
	if m.fixNestingFn != nil {
		return m.fixNestingFn(ctx)
	}
	return domain.Settings{}, false, nil
}

func (m *mockState) ForceReset(ctx context.Context) (map[string]string, error) {
	if m.forceResetFn != nil {
		return m.forceResetFn(ctx)
	}
	return domain.NewDefaults("").Emojis, nil
}

type mockHub struct {
	ephemeralFn func(event string, data json.RawMessage) error
}

func (m *mockHub) Register(conn *websocket.Conn) error { return nil }
func (m *mockHub) Unregister(conn *websocket.Conn)     {}
func (m *mockHub) GetClientCount() int                 { return 3 }

func (m *mockHub) Ephemeral(event string, data json.RawMessage) error {
	if m.ephemeralFn != nil {
		return m.ephemeralFn(event, data)
	}
	return nil
}

// --- Test server construction ---

type testServerOptions struct {
	hub          clientHub
	healthChecks []HealthCheck
	clock        clockwork.Clock
}

type testServerOption func(*testServerOptions)

func withHub(h clientHub) testServerOption {
	return func(o *testServerOptions) { o.hub = h }
}

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(o *testServerOptions) { o.healthChecks = checks }
}

func withClock(c clockwork.Clock) testServerOption {
	return func(o *testServerOptions) { o.clock = c }
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	staticDir := t.TempDir()
	for _, page := range []string{"login.html", "overlay.html", "table.html", "admin.html", "donation-manager-realtime.html"} {
		require.NoError(t, os.WriteFile(filepath.Join(staticDir, page), []byte("<html>"+page+"</html>"), 0o644))
	}

	return &config.Config{
		AppEnv:                       "test",
		Port:                         "0",
		SessionSecret:                "test-session-secret-32-bytes-long",
		SessionMaxAge:                24 * time.Hour,
		ViewerPassword:               testViewerPassword,
		AdminPassword:                testAdminPassword,
		StaticDir:                    staticDir,
		MaxWebSocketConnections:      100,
		MaxWebSocketConnectionsPerIP: 100,
		WebSocketConnectRate:         100,
		WebSocketConnectBurst:        100,
		CORSAllowOrigins:             "*",
	}
}

func newTestServer(t *testing.T, state stateService, opts ...testServerOption) *Server {
	t.Helper()
	o := &testServerOptions{hub: &mockHub{}, clock: clockwork.NewFakeClock()}
	for _, opt := range opts {
		opt(o)
	}
	return NewServer(testConfig(t), state, o.hub, o.healthChecks, o.clock)
}

// --- Request helpers ---

func doRequest(t *testing.T, srv *Server, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, srv *Server, role domain.Role) []*http.Cookie {
	t.Helper()
	password := testViewerPassword
	if role == domain.RoleSuperAdmin {
		password = testAdminPassword
	}
	body := `{"password":"` + password + `","role":"` + string(role) + `"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/login", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
