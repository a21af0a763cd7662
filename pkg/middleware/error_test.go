package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/similarity"
	"github.com/Ramsey-B/fern/pkg/store"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("game 7: %w", store.ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("slug hades: %w", store.ErrConflict), http.StatusConflict},
		{"lock busy", locks.ErrLockNotAcquired, http.StatusConflict},
		{"invalid game", fmt.Errorf("%w: no description", similarity.ErrInvalidGameData), http.StatusBadRequest},
		{"blank tag", normalizers.ErrBlankTagName, http.StatusBadRequest},
		{"http error", httperror.NewHTTPError(http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}

	e := echo.New()
	e.HTTPErrorHandler = Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	e.Use(Context())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/" + strings.ReplaceAll(tt.name, " ", "-")
			e.GET(path, func(echo.Context) error { return tt.err })

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set(echo.HeaderXRequestID, "req-1")
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "req-1", body.RequestID)
			assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))
		})
	}
}
