package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/streamers", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	return rec, Middleware()(handler)(c)
}

func TestMiddleware_StructuredError(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec, err := serve(t, func(c echo.Context) error {
		return ValidationError("invalid input")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid input", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.False(t, resp.Success)

	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("validation")))
}

func TestMiddleware_DomainConflictIs400(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec, err := serve(t, func(c echo.Context) error {
		return domain.Conflict(`streamer "Alice" already exists`)
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, `streamer "Alice" already exists`, resp.Error)
	assert.Equal(t, TypeConflict, resp.Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("conflict")))
}

func TestMiddleware_StandardErrorHidesCause(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec, err := serve(t, func(c echo.Context) error {
		return fmt.Errorf("redis: connection refused")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis")
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("internal")))
}

func TestMiddleware_NoError(t *testing.T) {
	rec, err := serve(t, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_PassesEchoHTTPError(t *testing.T) {
	HTTPErrorsTotal.Reset()

	_, err := serve(t, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too large")
	})

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, httpErr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("validation")))
}

func TestHandleError_Nil(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, HandleError(c, nil))
	assert.Equal(t, 0, rec.Body.Len())
}

func TestWrapHTTPError(t *testing.T) {
	tests := []struct {
		code     int
		wantType ErrorType
	}{
		{http.StatusBadRequest, TypeValidation},
		{http.StatusRequestEntityTooLarge, TypeValidation},
		{http.StatusNotFound, TypeNotFound},
		{http.StatusMethodNotAllowed, TypeNotFound},
		{http.StatusUnauthorized, TypeUnauthorized},
		{http.StatusForbidden, TypeForbidden},
		{http.StatusConflict, TypeConflict},
		{http.StatusServiceUnavailable, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantType, WrapHTTPError(echo.NewHTTPError(tt.code)).Type)
		})
	}
}

func TestWrapHTTPError_Message(t *testing.T) {
	assert.Equal(t, "custom", WrapHTTPError(echo.NewHTTPError(http.StatusBadRequest, "custom")).Message)
	assert.Equal(t, "Bad Request", WrapHTTPError(echo.NewHTTPError(http.StatusBadRequest, 12345)).Message)

	cause := fmt.Errorf("underlying")
	httpErr := echo.NewHTTPError(http.StatusInternalServerError, "wrapped")
	httpErr.Internal = cause
	assert.Equal(t, cause, WrapHTTPError(httpErr).Cause)
}
