package similarity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vectorizer"
)

const (
	DefaultBatchSize   = 100
	DefaultLogInterval = 500
	DefaultReadLimit   = 10
)

// Repository is the part of the entity store the similarity service needs.
type Repository interface {
	store.GameStore
	store.TagStore
	store.SimilarityStore
}

// Cache is a read-through cache of similar-games lookups.
type Cache interface {
	GetSimilarGames(ctx context.Context, gameID int64, limit int) ([]models.SimilarGame, bool)
	SetSimilarGames(ctx context.Context, gameID int64, limit int, games []models.SimilarGame)
	Invalidate(ctx context.Context, gameID int64)
}

// Listener is told about every committed replacement of a game's precomputed edges.
type Listener interface {
	SimilaritiesReplaced(ctx context.Context, gameID int64, edges []models.GameSimilarity)
}

// Config tunes the service.
type Config struct {
	Ranker       RankerConfig            `koanf:"ranker"`
	FieldWeights vectorizer.FieldWeights `koanf:"field_weights"`
	BatchSize    int                     `koanf:"batch_size" validate:"gt=0"`
	LogInterval  int                     `koanf:"log_interval" validate:"gt=0"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Ranker:       DefaultRankerConfig(),
		FieldWeights: vectorizer.DefaultFieldWeights(),
		BatchSize:    DefaultBatchSize,
		LogInterval:  DefaultLogInterval,
	}
}

// Service computes, stores and serves TF-IDF similarities.
type Service struct {
	repo      Repository
	locker    locks.Locker
	builder   *vectorizer.Builder
	ranker    *Ranker
	cache     Cache
	listeners []Listener
	logger    ectologger.Logger
	cfg       Config
}

// NewService creates a Service. cache may be nil.
func NewService(repo Repository, locker locks.Locker, cache Cache, logger ectologger.Logger, cfg Config, listeners ...Listener) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = DefaultLogInterval
	}
	if cfg.FieldWeights == nil {
		cfg.FieldWeights = vectorizer.DefaultFieldWeights()
	}
	return &Service{
		repo:      repo,
		locker:    locker,
		builder:   vectorizer.NewBuilder(cfg.FieldWeights, logger),
		ranker:    NewRanker(cfg.Ranker),
		cache:     cache,
		listeners: listeners,
		logger:    logger,
		cfg:       cfg,
	}
}

// ComputeForGame recomputes and replaces the precomputed edges of one game.
func (s *Service) ComputeForGame(ctx context.Context, gameID int64) ([]models.GameSimilarity, error) {
	ctx, span := tracing.StartSpan(ctx, "similarity.Service.ComputeForGame")
	defer span.End()

	start := time.Now()
	log := s.logger.WithContext(ctx).WithField("game_id", gameID)

	game, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: game %d: %w", ErrInvalidGameData, gameID, store.ErrNotFound)
		}
		return nil, err
	}
	if !game.HasDescription() {
		return nil, fmt.Errorf("%w: game '%s' has no description", ErrInvalidGameData, game.Name)
	}

	games, docs, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, err
	}

	vectors, failures := s.builder.BuildVectors(ctx, docs)
	for _, f := range failures {
		if f.ID == gameID {
			metrics.SimilarityComputations.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("%w: %w", ErrComputation, f)
		}
	}

	edges, err := s.rankGame(game, vectors)
	if err != nil {
		metrics.SimilarityComputations.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err := s.replace(ctx, gameID, edges); err != nil {
		return nil, err
	}

	metrics.SimilarityComputations.WithLabelValues("success").Inc()
	metrics.SimilarityDuration.WithLabelValues("game").Observe(time.Since(start).Seconds())
	log.WithFields(map[string]any{
		"corpus_size":  len(games),
		"similarities": len(edges),
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Infof("Computed %d similarities for '%s'", len(edges), game.Name)

	return edges, nil
}

// ComputeAll recomputes precomputed edges for every described game. The index is built
// once; items are ranked in chunks and a failing item is logged and skipped.
func (s *Service) ComputeAll(ctx context.Context) (*models.ComputationReport, error) {
	ctx, span := tracing.StartSpan(ctx, "similarity.Service.ComputeAll")
	defer span.End()

	start := time.Now()
	log := s.logger.WithContext(ctx)
	log.Info("Starting full TF-IDF similarity computation")

	games, docs, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	if len(games) == 0 {
		log.Warn("No games with descriptions found")
		return &models.ComputationReport{Status: "EMPTY"}, nil
	}
	log.Infof("Loaded %d games with descriptions", len(games))

	vectors, failures := s.builder.BuildVectors(ctx, docs)
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no game could be indexed", ErrIndexBuild)
	}

	report := &models.ComputationReport{GamesFailed: len(failures)}
	failed := make(map[int64]struct{}, len(failures))
	for _, f := range failures {
		failed[f.ID] = struct{}{}
	}

	totalChunks := (len(games) + s.cfg.BatchSize - 1) / s.cfg.BatchSize
	for chunkIndex := 0; chunkIndex < totalChunks; chunkIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lo := chunkIndex * s.cfg.BatchSize
		hi := min(lo+s.cfg.BatchSize, len(games))
		chunkSimilarities := 0

		for i := lo; i < hi; i++ {
			game := &games[i]
			if _, skip := failed[game.ID]; skip {
				continue
			}

			edges, err := s.rankGame(game, vectors)
			if err == nil {
				err = s.replace(ctx, game.ID, edges)
			}
			if err != nil {
				log.WithError(err).WithFields(map[string]any{
					"game_id":   game.ID,
					"game_name": game.Name,
				}).Errorf("Failed to compute similarities for '%s'", game.Name)
				metrics.SimilarityComputations.WithLabelValues("failed").Inc()
				report.GamesFailed++
				continue
			}

			metrics.SimilarityComputations.WithLabelValues("success").Inc()
			report.GamesProcessed++
			report.SimilaritiesComputed += len(edges)
			chunkSimilarities += len(edges)

			if report.GamesProcessed%s.cfg.LogInterval == 0 {
				log.Infof("Processed %d/%d games (%d similarities computed)", report.GamesProcessed, len(games), report.SimilaritiesComputed)
			}
		}

		log.Infof("Batch %d/%d complete: saved %d similarities (progress: %d/%d games, %d total similarities)",
			chunkIndex+1, totalChunks, chunkSimilarities, report.GamesProcessed, len(games), report.SimilaritiesComputed)
	}

	report.Status = "COMPLETED"
	if report.GamesFailed > 0 {
		report.Status = "PARTIAL"
	}
	report.DurationMs = time.Since(start).Milliseconds()
	metrics.SimilarityDuration.WithLabelValues("all").Observe(time.Since(start).Seconds())

	log.WithFields(map[string]any{
		"games_processed": report.GamesProcessed,
		"games_failed":    report.GamesFailed,
		"similarities":    report.SimilaritiesComputed,
		"duration_ms":     report.DurationMs,
	}).Info("Completed TF-IDF similarity computation")

	return report, nil
}

// GetSimilarGames returns the top limit content-similar games of gameID. Only computed
// edges are served; catalog-provided edges stay in the store. Ranking always keeps the
// configured top N; limit only truncates at read time.
func (s *Service) GetSimilarGames(ctx context.Context, gameID int64, limit int) ([]models.SimilarGame, error) {
	ctx, span := tracing.StartSpan(ctx, "similarity.Service.GetSimilarGames")
	defer span.End()

	if limit <= 0 {
		limit = DefaultReadLimit
	}

	if s.cache != nil {
		if games, ok := s.cache.GetSimilarGames(ctx, gameID, limit); ok {
			return games, nil
		}
	}

	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return nil, err
	}

	games, err := s.repo.ListSimilarGames(ctx, gameID, models.SimilarityTypePrecomputedTFIDF, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetSimilarGames(ctx, gameID, limit, games)
	}
	return games, nil
}

func (s *Service) rankGame(game *models.Game, vectors vectorizer.Vectors) ([]models.GameSimilarity, error) {
	source, ok := vectors[game.ID]
	if !ok {
		return nil, fmt.Errorf("%w: game %d has no vector", ErrComputation, game.ID)
	}
	if len(source) == 0 {
		s.logger.WithFields(map[string]any{"game_id": game.ID}).Warnf("Empty vector for game '%s'", game.Name)
		return []models.GameSimilarity{}, nil
	}

	ranked, err := s.ranker.Rank(source, vectors, game.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	edges := make([]models.GameSimilarity, 0, len(ranked))
	for _, r := range ranked {
		edges = append(edges, models.GameSimilarity{
			GameID:          game.ID,
			SimilarGameID:   r.ID,
			SimilarityScore: r.Score,
			SimilarityType:  models.SimilarityTypePrecomputedTFIDF,
			ComputedAt:      now,
		})
	}
	return edges, nil
}

// replace swaps a game's precomputed edges while holding the game's write lock.
func (s *Service) replace(ctx context.Context, gameID int64, edges []models.GameSimilarity) error {
	err := s.locker.WithLock(ctx, locks.GameKeys(gameID), func(ctx context.Context) error {
		return s.repo.ReplaceSimilarities(ctx, gameID, models.SimilarityTypePrecomputedTFIDF, edges)
	})
	if err != nil {
		return err
	}

	metrics.SimilarityEdgesWritten.Add(float64(len(edges)))
	if s.cache != nil {
		s.cache.Invalidate(ctx, gameID)
	}
	for _, l := range s.listeners {
		l.SimilaritiesReplaced(ctx, gameID, edges)
	}
	return nil
}

// loadCorpus returns every described game ordered by id with its indexable document.
func (s *Service) loadCorpus(ctx context.Context) ([]models.Game, []vectorizer.Document, error) {
	games, err := s.repo.ListGamesWithDescription(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(games) == 0 {
		return games, nil, nil
	}

	ids := ectolinq.Map(games, func(g models.Game) int64 { return g.ID })
	tags, err := s.repo.ListGameTags(ctx, ids...)
	if err != nil {
		return nil, nil, err
	}

	return games, BuildDocuments(games, tags), nil
}

// BuildDocuments turns games and their tags into indexable documents. Tag names of
// the genre, theme and keyword categories are joined into their own fields.
func BuildDocuments(games []models.Game, tags []models.TaggedGame) []vectorizer.Document {
	indexed := ectolinq.Filter(tags, func(t models.TaggedGame) bool {
		_, ok := fieldFor(t.Category)
		return ok
	})
	byGame := make(map[int64]map[vectorizer.Field][]string, len(games))
	for _, t := range indexed {
		field, _ := fieldFor(t.Category)
		if byGame[t.GameID] == nil {
			byGame[t.GameID] = make(map[vectorizer.Field][]string)
		}
		byGame[t.GameID][field] = append(byGame[t.GameID][field], t.Name)
	}

	return ectolinq.Map(games, func(g models.Game) vectorizer.Document {
		fields := map[vectorizer.Field]string{}
		if g.Description != nil {
			fields[vectorizer.FieldDescription] = *g.Description
		}
		for field, names := range byGame[g.ID] {
			fields[field] = strings.Join(names, " ")
		}
		return vectorizer.Document{ID: g.ID, Name: g.Name, Fields: fields}
	})
}

func fieldFor(category models.TagCategory) (vectorizer.Field, bool) {
	switch category {
	case models.TagCategoryGenre:
		return vectorizer.FieldGenre, true
	case models.TagCategoryTheme:
		return vectorizer.FieldTheme, true
	case models.TagCategoryKeyword:
		return vectorizer.FieldKeyword, true
	default:
		return "", false
	}
}
