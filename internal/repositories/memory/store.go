// Package memory is an in-process implementation of store.Store. Every entity lives in
// an id-keyed arena guarded by one lock, so each operation, including a merge, is
// applied atomically with respect to readers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

type tagKey struct {
	normalizedName string
	category       models.TagCategory
}

type edgeKey struct {
	gameID        int64
	similarGameID int64
	simType       models.SimilarityType
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.RWMutex

	nextGameID int64
	nextTagID  int64
	nextEdgeID int64
	nextJobID  int64
	nextLogID  int64

	games    map[int64]*models.Game
	tags     map[int64]*models.Tag
	tagIndex map[tagKey]int64
	gameTags map[int64]map[int64]float64
	edges    map[edgeKey]*models.GameSimilarity
	jobs     map[int64]*models.EtlJob
	jobLogs  map[int64][]models.EtlJobLog

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		games:    make(map[int64]*models.Game),
		tags:     make(map[int64]*models.Tag),
		tagIndex: make(map[tagKey]int64),
		gameTags: make(map[int64]map[int64]float64),
		edges:    make(map[edgeKey]*models.GameSimilarity),
		jobs:     make(map[int64]*models.EtlJob),
		jobLogs:  make(map[int64][]models.EtlJobLog),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateGame(ctx context.Context, req models.CreateGameRequest) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNewGame(req); err != nil {
		return nil, err
	}
	return s.insertGame(req), nil
}

// CreateGameWithTags validates the game and every assignment before writing anything.
func (s *Store) CreateGameWithTags(ctx context.Context, req models.CreateGameRequest, tags []models.TagAssignment) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNewGame(req); err != nil {
		return nil, err
	}
	for _, assignment := range tags {
		if strings.TrimSpace(assignment.NormalizedName) == "" {
			return nil, fmt.Errorf("blank tag for game '%s'", req.Slug)
		}
		if _, ok := models.ParseTagCategory(string(assignment.Category)); !ok {
			return nil, fmt.Errorf("unknown tag category %s", assignment.Category)
		}
	}

	game := s.insertGame(req)
	assoc := make(map[int64]float64, len(tags))
	for _, assignment := range tags {
		tagID := s.getOrCreateTag(assignment.Name, assignment.NormalizedName, assignment.Category)
		if _, exists := assoc[tagID]; !exists {
			assoc[tagID] = assignment.Weight
		}
	}
	s.gameTags[game.ID] = assoc
	return game, nil
}

func (s *Store) checkNewGame(req models.CreateGameRequest) error {
	for _, g := range s.games {
		if strings.EqualFold(g.Slug, req.Slug) {
			return fmt.Errorf("%w: slug '%s' already exists", store.ErrConflict, req.Slug)
		}
		if req.RawgID != nil && g.RawgID != nil && *g.RawgID == *req.RawgID {
			return fmt.Errorf("%w: rawg id %d already exists", store.ErrConflict, *req.RawgID)
		}
		if req.IgdbID != nil && g.IgdbID != nil && *g.IgdbID == *req.IgdbID {
			return fmt.Errorf("%w: igdb id %d already exists", store.ErrConflict, *req.IgdbID)
		}
	}
	return nil
}

func (s *Store) insertGame(req models.CreateGameRequest) *models.Game {
	s.nextGameID++
	now := s.now()
	game := &models.Game{
		ID:                 s.nextGameID,
		RawgID:             req.RawgID,
		IgdbID:             req.IgdbID,
		Name:               req.Name,
		Slug:               req.Slug,
		Description:        req.Description,
		Rating:             req.Rating,
		RatingCount:        req.RatingCount,
		ReleaseDate:        req.ReleaseDate,
		WebsiteURL:         req.WebsiteURL,
		BackgroundImageURL: req.BackgroundImageURL,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.games[game.ID] = game

	out := *game
	return &out
}

func (s *Store) GetGame(ctx context.Context, id int64) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("game %d: %w", id, store.ErrNotFound)
	}
	out := *g
	return &out, nil
}

func (s *Store) GetGameBySlug(ctx context.Context, slug string) (*models.Game, error) {
	return s.findGame(func(g *models.Game) bool { return strings.EqualFold(g.Slug, slug) }, "slug "+slug)
}

func (s *Store) GetGameByExternalID(ctx context.Context, source models.Source, externalID int64) (*models.Game, error) {
	return s.findGame(func(g *models.Game) bool {
		switch source {
		case models.SourceRawg:
			return g.RawgID != nil && *g.RawgID == externalID
		case models.SourceIgdb:
			return g.IgdbID != nil && *g.IgdbID == externalID
		}
		return false
	}, fmt.Sprintf("%s id %d", source, externalID))
}

func (s *Store) FindGameByName(ctx context.Context, name string) (*models.Game, error) {
	return s.findGame(func(g *models.Game) bool { return strings.EqualFold(g.Name, name) }, "name "+name)
}

// findGame returns the lowest-id game matching pred.
func (s *Store) findGame(pred func(*models.Game) bool, what string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Game
	for _, g := range s.games {
		if pred(g) && (found == nil || g.ID < found.ID) {
			found = g
		}
	}
	if found == nil {
		return nil, fmt.Errorf("game with %s: %w", what, store.ErrNotFound)
	}
	out := *found
	return &out, nil
}

func (s *Store) ListGamesWithDescription(ctx context.Context) ([]models.Game, error) {
	return s.listGames(func(g *models.Game) bool { return g.HasDescription() }), nil
}

func (s *Store) ListGamesOnlyFrom(ctx context.Context, source models.Source) ([]models.Game, error) {
	return s.listGames(func(g *models.Game) bool {
		switch source {
		case models.SourceRawg:
			return g.RawgID != nil && g.IgdbID == nil
		case models.SourceIgdb:
			return g.IgdbID != nil && g.RawgID == nil
		}
		return false
	}), nil
}

func (s *Store) ListGamesByTag(ctx context.Context, category models.TagCategory, normalizedName string) ([]models.Game, error) {
	s.mu.RLock()
	tagID, ok := s.tagIndex[tagKey{normalizedName: normalizedName, category: category}]
	s.mu.RUnlock()
	if !ok {
		return []models.Game{}, nil
	}

	return s.listGames(func(g *models.Game) bool {
		_, tagged := s.gameTags[g.ID][tagID]
		return tagged
	}), nil
}

// listGames returns copies of the games matching pred, ordered by id.
func (s *Store) listGames(pred func(*models.Game) bool) []models.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Game, 0)
	for _, g := range s.games {
		if pred(g) {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ApplyMerge(ctx context.Context, plan models.MergePlan) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	primaryID, secondaryID := plan.Primary.ID, plan.SecondaryID
	if primaryID == secondaryID {
		return 0, fmt.Errorf("%w: cannot merge game %d into itself", store.ErrConflict, primaryID)
	}
	primary, ok := s.games[primaryID]
	if !ok {
		return 0, fmt.Errorf("primary game %d: %w", primaryID, store.ErrNotFound)
	}
	if _, ok := s.games[secondaryID]; !ok {
		return 0, fmt.Errorf("secondary game %d: %w", secondaryID, store.ErrNotFound)
	}
	for id, g := range s.games {
		if id == primaryID || id == secondaryID {
			continue
		}
		if plan.Primary.RawgID != nil && g.RawgID != nil && *g.RawgID == *plan.Primary.RawgID {
			return 0, fmt.Errorf("%w: rawg id %d belongs to game %d", store.ErrConflict, *g.RawgID, id)
		}
	}

	copied := 0
	if s.gameTags[primaryID] == nil {
		s.gameTags[primaryID] = make(map[int64]float64)
	}
	for tagID, weight := range s.gameTags[secondaryID] {
		if _, has := s.gameTags[primaryID][tagID]; has {
			continue
		}
		s.gameTags[primaryID][tagID] = weight
		copied++
	}

	delete(s.gameTags, secondaryID)
	for k := range s.edges {
		if k.gameID == secondaryID || k.similarGameID == secondaryID {
			delete(s.edges, k)
		}
	}
	delete(s.games, secondaryID)

	updated := plan.Primary
	updated.CreatedAt = primary.CreatedAt
	updated.UpdatedAt = s.now()
	s.games[primaryID] = &updated

	return copied, nil
}

func (s *Store) GetOrCreateTag(ctx context.Context, name string, normalizedName string, category models.TagCategory) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := *s.tags[s.getOrCreateTag(name, normalizedName, category)]
	return &out, nil
}

func (s *Store) getOrCreateTag(name string, normalizedName string, category models.TagCategory) int64 {
	key := tagKey{normalizedName: normalizedName, category: category}
	if id, ok := s.tagIndex[key]; ok {
		return id
	}

	s.nextTagID++
	s.tags[s.nextTagID] = &models.Tag{ID: s.nextTagID, Name: name, NormalizedName: normalizedName, Category: category}
	s.tagIndex[key] = s.nextTagID
	return s.nextTagID
}

func (s *Store) AddGameTag(ctx context.Context, gameTag models.GameTag) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[gameTag.GameID]; !ok {
		return false, fmt.Errorf("game %d: %w", gameTag.GameID, store.ErrNotFound)
	}
	if _, ok := s.tags[gameTag.TagID]; !ok {
		return false, fmt.Errorf("tag %d: %w", gameTag.TagID, store.ErrNotFound)
	}

	assoc := s.gameTags[gameTag.GameID]
	if assoc == nil {
		assoc = make(map[int64]float64)
		s.gameTags[gameTag.GameID] = assoc
	}
	if _, exists := assoc[gameTag.TagID]; exists {
		return false, nil
	}
	assoc[gameTag.TagID] = gameTag.Weight
	return true, nil
}

func (s *Store) ListGameTags(ctx context.Context, gameIDs ...int64) ([]models.TaggedGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wanted map[int64]struct{}
	if len(gameIDs) > 0 {
		wanted = make(map[int64]struct{}, len(gameIDs))
		for _, id := range gameIDs {
			wanted[id] = struct{}{}
		}
	}

	out := make([]models.TaggedGame, 0)
	for gameID, assoc := range s.gameTags {
		if wanted != nil {
			if _, ok := wanted[gameID]; !ok {
				continue
			}
		}
		for tagID, weight := range assoc {
			tag := s.tags[tagID]
			out = append(out, models.TaggedGame{
				GameID:         gameID,
				TagID:          tagID,
				Weight:         weight,
				Name:           tag.Name,
				NormalizedName: tag.NormalizedName,
				Category:       tag.Category,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameID != out[j].GameID {
			return out[i].GameID < out[j].GameID
		}
		return out[i].TagID < out[j].TagID
	})
	return out, nil
}

func (s *Store) ReplaceSimilarities(ctx context.Context, gameID int64, simType models.SimilarityType, edges []models.GameSimilarity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[gameID]; !ok {
		return fmt.Errorf("game %d: %w", gameID, store.ErrNotFound)
	}
	for _, e := range edges {
		if e.GameID != gameID || e.SimilarityType != simType {
			return fmt.Errorf("%w: edge %d->%d does not belong to game %d/%s", store.ErrConflict, e.GameID, e.SimilarGameID, gameID, simType)
		}
		if err := s.checkEdge(e); err != nil {
			return err
		}
	}

	for k := range s.edges {
		if k.gameID == gameID && k.simType == simType {
			delete(s.edges, k)
		}
	}
	for _, e := range edges {
		s.putEdge(e)
	}
	return nil
}

func (s *Store) InsertSimilarities(ctx context.Context, edges []models.GameSimilarity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range edges {
		if err := s.checkEdge(e); err != nil {
			return 0, err
		}
	}

	inserted := 0
	for _, e := range edges {
		key := edgeKey{gameID: e.GameID, similarGameID: e.SimilarGameID, simType: e.SimilarityType}
		if _, exists := s.edges[key]; exists {
			continue
		}
		s.putEdge(e)
		inserted++
	}
	return inserted, nil
}

func (s *Store) checkEdge(e models.GameSimilarity) error {
	if e.GameID == e.SimilarGameID {
		return fmt.Errorf("%w: self edge on game %d", store.ErrConflict, e.GameID)
	}
	if _, ok := s.games[e.GameID]; !ok {
		return fmt.Errorf("game %d: %w", e.GameID, store.ErrNotFound)
	}
	if _, ok := s.games[e.SimilarGameID]; !ok {
		return fmt.Errorf("game %d: %w", e.SimilarGameID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) putEdge(e models.GameSimilarity) {
	s.nextEdgeID++
	e.ID = s.nextEdgeID
	if e.ComputedAt.IsZero() {
		e.ComputedAt = s.now()
	}
	s.edges[edgeKey{gameID: e.GameID, similarGameID: e.SimilarGameID, simType: e.SimilarityType}] = &e
}

func (s *Store) ListSimilarGames(ctx context.Context, gameID int64, simType models.SimilarityType, limit int) ([]models.SimilarGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SimilarGame, 0)
	for k, e := range s.edges {
		if k.gameID != gameID || k.simType != simType {
			continue
		}
		target := s.games[k.similarGameID]
		out = append(out, models.SimilarGame{
			GameID:             target.ID,
			Name:               target.Name,
			Slug:               target.Slug,
			Rating:             target.Rating,
			RatingCount:        target.RatingCount,
			ReleaseDate:        target.ReleaseDate,
			BackgroundImageURL: target.BackgroundImageURL,
			SimilarityScore:    e.SimilarityScore,
			SimilarityType:     e.SimilarityType,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SimilarityScore != out[j].SimilarityScore {
			return out[i].SimilarityScore > out[j].SimilarityScore
		}
		return out[i].GameID < out[j].GameID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListSimilarities(ctx context.Context, gameID int64, simType models.SimilarityType) ([]models.GameSimilarity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.GameSimilarity, 0)
	for k, e := range s.edges {
		if k.gameID == gameID && k.simType == simType {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SimilarityScore != out[j].SimilarityScore {
			return out[i].SimilarityScore > out[j].SimilarityScore
		}
		return out[i].SimilarGameID < out[j].SimilarGameID
	})
	return out, nil
}

func (s *Store) CreateJob(ctx context.Context, job models.EtlJob) (*models.EtlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJobID++
	job.ID = s.nextJobID
	job.CreatedAt = s.now()
	s.jobs[job.ID] = &job

	out := job
	return &out, nil
}

func (s *Store) UpdateJob(ctx context.Context, job models.EtlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %d: %w", job.ID, store.ErrNotFound)
	}
	job.CreatedAt = existing.CreatedAt
	s.jobs[job.ID] = &job
	return nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*models.EtlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, store.ErrNotFound)
	}
	out := *job
	return &out, nil
}

func (s *Store) AddJobLog(ctx context.Context, entry models.EtlJobLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[entry.JobID]; !ok {
		return fmt.Errorf("job %d: %w", entry.JobID, store.ErrNotFound)
	}
	s.nextLogID++
	entry.ID = s.nextLogID
	entry.CreatedAt = s.now()
	s.jobLogs[entry.JobID] = append(s.jobLogs[entry.JobID], entry)
	return nil
}

func (s *Store) ListJobLogs(ctx context.Context, jobID int64) ([]models.EtlJobLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := s.jobLogs[jobID]
	out := make([]models.EtlJobLog, len(logs))
	copy(out, logs)
	return out, nil
}
