package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/similarity"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// ToHTTPError converts core sentinel errors into HTTP errors. Errors that already
// carry a status are returned unchanged.
func ToHTTPError(err error) error {
	if httperror.IsHTTPError(err) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict), errors.Is(err, locks.ErrLockNotAcquired):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, similarity.ErrInvalidGameData), errors.Is(err, normalizers.ErrBlankTagName):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if mapped := ToHTTPError(err); httperror.IsHTTPError(mapped) {
			httperr := httperror.ToHTTPError(mapped)
			code = httperror.GetStatusCode(mapped)
			message = httperr.Error()
			meta = httperr.Meta
		}

		log := logger.WithContext(ctx).WithError(err).WithField("status", code)
		if code >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Warn("api is returning an error")
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
