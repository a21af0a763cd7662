package etl

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	etlpkg "github.com/Ramsey-B/fern/pkg/etl"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Runner runs the ingestion pipeline.
type Runner interface {
	Run(ctx context.Context, req etlpkg.RunRequest) (*models.EtlReport, error)
}

// Jobs reads job records.
type Jobs interface {
	GetJob(ctx context.Context, id int64) (*models.EtlJob, error)
	ListJobLogs(ctx context.Context, jobID int64) ([]models.EtlJobLog, error)
}

// Handler serves ETL endpoints
type Handler struct {
	runner Runner
	jobs   Jobs
	paths  etlpkg.RunRequest
	logger ectologger.Logger
}

// NewHandler creates a new ETL handler. paths are the catalog exports a triggered run reads.
func NewHandler(runner Runner, jobs Jobs, paths etlpkg.RunRequest, logger ectologger.Logger) *Handler {
	return &Handler{
		runner: runner,
		jobs:   jobs,
		paths:  paths,
		logger: logger,
	}
}

// Register registers the ETL routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/run", h.Run)
	g.GET("/jobs/:id", h.GetJob)
}

// RunResponse carries the report of a finished run, failed or not.
type RunResponse struct {
	Report *models.EtlReport `json:"report"`
	Error  string            `json:"error,omitempty"`
}

type JobResponse struct {
	Job  models.EtlJob      `json:"job"`
	Logs []models.EtlJobLog `json:"logs"`
}

// Run executes the full pipeline against the configured catalog exports and waits for it
// @Summary Run the ETL pipeline
// @Tags ETL
// @Produce json
// @Success 200 {object} RunResponse
// @Failure 400 {object} httperror.HTTPError
// @Failure 500 {object} RunResponse
// @Router /api/etl/run [post]
func (h *Handler) Run(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "etl_handler.Run")
	defer span.End()

	if err := validate.Struct(h.paths); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "catalog paths are not configured: "+err.Error())
	}

	report, err := h.runner.Run(ctx, h.paths)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("ETL run failed")
		return c.JSON(http.StatusInternalServerError, RunResponse{Report: report, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, RunResponse{Report: report})
}

// GetJob returns one job with its log entries
// @Summary Get an ETL job
// @Tags ETL
// @Produce json
// @Param id path int true "Job ID"
// @Success 200 {object} JobResponse
// @Failure 404 {object} httperror.HTTPError
// @Router /api/etl/jobs/{id} [get]
func (h *Handler) GetJob(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "etl_handler.GetJob")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}

	job, err := h.jobs.GetJob(ctx, id)
	if err != nil {
		return middleware.ToHTTPError(err)
	}
	logs, err := h.jobs.ListJobLogs(ctx, id)
	if err != nil {
		return middleware.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, JobResponse{Job: *job, Logs: logs})
}
