package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestChecker_Run(t *testing.T) {
	tests := []struct {
		name     string
		required CheckFunc
		optional CheckFunc
		want     Status
	}{
		{"all healthy", ok, ok, StatusHealthy},
		{"optional down degrades", ok, down, StatusDegraded},
		{"required down is unhealthy", down, ok, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("test")
			c.Require("database", tt.required)
			c.Optional("kafka", tt.optional)

			resp := c.Run(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, 2)
		})
	}
}

func TestChecker_Routes(t *testing.T) {
	e := echo.New()
	c := NewChecker("test")
	c.Require("database", ok)
	c.RegisterRoutes(e)

	get := func(path string) int {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/health/live"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/health/ready"), "not ready before startup finishes")

	c.SetReady(true)
	require.Equal(t, http.StatusOK, get("/health/ready"))
	assert.Equal(t, []string{"database"}, c.Names())
}
