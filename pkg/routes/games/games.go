package games

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/similarity"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MaxLimit caps the limit query parameter.
const MaxLimit = 100

// Similarities is the similarity service as the routes use it.
type Similarities interface {
	GetSimilarGames(ctx context.Context, gameID int64, limit int) ([]models.SimilarGame, error)
	ComputeForGame(ctx context.Context, gameID int64) ([]models.GameSimilarity, error)
	ComputeAll(ctx context.Context) (*models.ComputationReport, error)
}

// Neighbors reads projected edges from the graph store.
type Neighbors interface {
	Neighbors(ctx context.Context, gameID int64, limit int) ([]int64, error)
}

// Handler serves game similarity endpoints
type Handler struct {
	similarities Similarities
	graph        Neighbors
	logger       ectologger.Logger
}

// NewHandler creates a new games handler. graph may be nil when no graph store is configured.
func NewHandler(similarities Similarities, graph Neighbors, logger ectologger.Logger) *Handler {
	return &Handler{
		similarities: similarities,
		graph:        graph,
		logger:       logger,
	}
}

// Register registers the game routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/games/:id/similar", h.GetSimilar)
	g.POST("/games/:id/similarities", h.Recompute)
	g.GET("/games/:id/graph", h.GetNeighbors)
	g.POST("/similarities/recompute", h.RecomputeAll)
}

type SimilarGamesResponse struct {
	GameID       int64                `json:"game_id"`
	SimilarGames []models.SimilarGame `json:"similar_games"`
}

type RecomputeResponse struct {
	GameID       int64                   `json:"game_id"`
	Similarities []models.GameSimilarity `json:"similarities"`
}

type NeighborsResponse struct {
	GameID    int64   `json:"game_id"`
	Neighbors []int64 `json:"neighbors"`
}

// GetSimilar returns the strongest similar games of one game
// @Summary Get similar games
// @Tags Games
// @Produce json
// @Param id path int true "Game ID"
// @Param limit query int false "Maximum results (default 10, max 100)"
// @Success 200 {object} SimilarGamesResponse
// @Failure 400 {object} httperror.HTTPError
// @Failure 404 {object} httperror.HTTPError
// @Router /api/games/{id}/similar [get]
func (h *Handler) GetSimilar(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "games_handler.GetSimilar")
	defer span.End()

	id, err := gameID(c)
	if err != nil {
		return err
	}
	limit, err := limitParam(c, similarity.DefaultReadLimit)
	if err != nil {
		return err
	}

	games, err := h.similarities.GetSimilarGames(ctx, id, limit)
	if err != nil {
		return middleware.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, SimilarGamesResponse{GameID: id, SimilarGames: games})
}

// Recompute rebuilds the precomputed similarities of one game
// @Summary Recompute one game's similarities
// @Tags Games
// @Produce json
// @Param id path int true "Game ID"
// @Success 200 {object} RecomputeResponse
// @Failure 404 {object} httperror.HTTPError
// @Failure 409 {object} httperror.HTTPError
// @Router /api/games/{id}/similarities [post]
func (h *Handler) Recompute(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "games_handler.Recompute")
	defer span.End()

	id, err := gameID(c)
	if err != nil {
		return err
	}

	edges, err := h.similarities.ComputeForGame(ctx, id)
	if err != nil {
		return middleware.ToHTTPError(err)
	}
	if edges == nil {
		edges = []models.GameSimilarity{}
	}
	return c.JSON(http.StatusOK, RecomputeResponse{GameID: id, Similarities: edges})
}

// RecomputeAll rebuilds content similarity for the whole corpus
// @Summary Recompute all similarities
// @Tags Similarities
// @Produce json
// @Success 200 {object} models.ComputationReport
// @Router /api/similarities/recompute [post]
func (h *Handler) RecomputeAll(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "games_handler.RecomputeAll")
	defer span.End()

	report, err := h.similarities.ComputeAll(ctx)
	if err != nil {
		return middleware.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, report)
}

// GetNeighbors returns the projected graph neighbors of one game
func (h *Handler) GetNeighbors(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "games_handler.GetNeighbors")
	defer span.End()

	if h.graph == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "graph store is not configured")
	}

	id, err := gameID(c)
	if err != nil {
		return err
	}
	limit, err := limitParam(c, similarity.DefaultReadLimit)
	if err != nil {
		return err
	}

	neighbors, err := h.graph.Neighbors(ctx, id, limit)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).WithField("game_id", id).Error("Failed to read graph neighbors")
		return httperror.NewHTTPError(http.StatusBadGateway, "graph store unavailable")
	}
	return c.JSON(http.StatusOK, NeighborsResponse{GameID: id, Neighbors: neighbors})
}

func gameID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	return id, nil
}

func limitParam(c echo.Context, fallback int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, nil
}
