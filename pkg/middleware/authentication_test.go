package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

type stubVerifier struct {
	claims *UserClaims
	err    error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (*UserClaims, error) {
	return s.claims, s.err
}

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestAuthentication(t *testing.T) {
	t.Run("missing bearer is rejected", func(t *testing.T) {
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

		handler := Authentication(newTestLogger(), stubVerifier{})(func(c echo.Context) error { return nil })
		err := handler(c)

		var he *echo.HTTPError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		c := e.NewContext(req, httptest.NewRecorder())

		handler := Authentication(newTestLogger(), stubVerifier{err: errors.New("expired")})(func(c echo.Context) error { return nil })
		err := handler(c)

		var he *echo.HTTPError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("claims populate the request context", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		c := e.NewContext(req, httptest.NewRecorder())

		verifier := stubVerifier{claims: &UserClaims{Sub: "user-1", MunicipalityID: "m-1"}}
		var userID, municipalityID string
		handler := Authentication(newTestLogger(), verifier)(func(c echo.Context) error {
			userID = appctx.GetUserID(c.Request().Context())
			municipalityID = appctx.GetMunicipalityID(c.Request().Context())
			return nil
		})

		require.NoError(t, handler(c))
		assert.Equal(t, "user-1", userID)
		assert.Equal(t, "m-1", municipalityID)
	})
}

func TestContextMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderMunicipalityID, "0b0f5c36-7b7c-4a41-9d8e-0a5b6c1d2e3f")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var requestID string
	handler := Context()(func(c echo.Context) error {
		requestID = appctx.GetRequestID(c.Request().Context())
		_, ok := appctx.GetMunicipalityUUID(c.Request().Context())
		assert.True(t, ok)
		return nil
	})

	require.NoError(t, handler(c))
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, rec.Header().Get(echo.HeaderXRequestID))
}
