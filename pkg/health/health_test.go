package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, c *Checker, path string) (int, Response) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	code, resp := serve(t, NewChecker("1.0.0"), "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.0.0", resp.Version)
}

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		ready      bool
		checks     map[string]PingFunc
		wantCode   int
		wantStatus Status
	}{
		{"starting up", false, map[string]PingFunc{"database": ok}, http.StatusServiceUnavailable, StatusUnhealthy},
		{"all healthy", true, map[string]PingFunc{"database": ok, "redis": ok}, http.StatusOK, StatusHealthy},
		{"database down", true, map[string]PingFunc{"database": down, "redis": ok}, http.StatusServiceUnavailable, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("test")
			for name, fn := range tt.checks {
				c.AddCheck(name, fn)
			}
			c.SetReady(tt.ready)

			code, resp := serve(t, c, "/health/ready")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}

func TestRunChecks_ReportsFailures(t *testing.T) {
	c := NewChecker("test").
		AddCheck("database", func(context.Context) error { return errors.New("timeout") }).
		AddRedis(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}))

	results := c.RunChecks(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusUnhealthy, results["redis"].Status)
	assert.Equal(t, StatusUnhealthy, results["database"].Status)
	assert.Equal(t, "timeout", results["database"].Message)
}
