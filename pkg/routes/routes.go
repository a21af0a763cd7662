// Package routes assembles the HTTP server.
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/etl"
	"github.com/Ramsey-B/fern/pkg/routes/games"
)

// Options holds everything the server routes to. Nil handlers are not registered.
type Options struct {
	ServiceName string
	Logger      ectologger.Logger
	Health      *health.Checker
	Games       *games.Handler
	Etl         *etl.Handler
}

// New builds the echo server.
func New(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(opts.Logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(opts.ServiceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(opts.Logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if opts.Health != nil {
		opts.Health.RegisterRoutes(e)
	}

	api := e.Group("/api")
	if opts.Games != nil {
		opts.Games.Register(api)
	}
	if opts.Etl != nil {
		opts.Etl.Register(api.Group("/etl"))
	}
	return e
}
