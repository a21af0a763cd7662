package similarity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/vectorizer"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	store   *memory.Store
	shooter *models.Game
	twin    *models.Game
	farm    *models.Game
	blank   *models.Game
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()

	add := func(name, slug string, description *string, genre string) *models.Game {
		return addGame(t, s, name, slug, description, genre)
	}

	return &fixture{
		store:   s,
		shooter: add("Star Blaster", "star-blaster", ptr("space shooter with aliens and lasers"), "shooter"),
		twin:    add("Star Blaster II", "star-blaster-ii", ptr("space shooter with aliens and ships"), "shooter"),
		farm:    add("Harvest Valley", "harvest-valley", ptr("farming crops and cows"), "simulation"),
		blank:   add("Untitled", "untitled", nil, "shooter"),
	}
}

func addGame(t *testing.T, s *memory.Store, name, slug string, description *string, genre string) *models.Game {
	t.Helper()
	ctx := context.Background()

	g, err := s.CreateGame(ctx, models.CreateGameRequest{Name: name, Slug: slug, Description: description})
	require.NoError(t, err)
	if genre != "" {
		tag, err := s.GetOrCreateTag(ctx, genre, genre, models.TagCategoryGenre)
		require.NoError(t, err)
		_, err = s.AddGameTag(ctx, models.GameTag{GameID: g.ID, TagID: tag.ID, Weight: 1})
		require.NoError(t, err)
	}
	return g
}

func edgeTo(edges []models.GameSimilarity, id int64) *models.GameSimilarity {
	for i := range edges {
		if edges[i].SimilarGameID == id {
			return &edges[i]
		}
	}
	return nil
}

type recordingCache struct {
	mu          sync.Mutex
	entries     map[int64][]models.SimilarGame
	hits        int
	invalidated []int64
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[int64][]models.SimilarGame{}}
}

func (c *recordingCache) GetSimilarGames(_ context.Context, gameID int64, _ int) ([]models.SimilarGame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	games, ok := c.entries[gameID]
	if ok {
		c.hits++
	}
	return games, ok
}

func (c *recordingCache) SetSimilarGames(_ context.Context, gameID int64, _ int, games []models.SimilarGame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[gameID] = games
}

func (c *recordingCache) Invalidate(_ context.Context, gameID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, gameID)
	c.invalidated = append(c.invalidated, gameID)
}

type recordingListener struct {
	replaced map[int64]int
}

func (l *recordingListener) SimilaritiesReplaced(_ context.Context, gameID int64, edges []models.GameSimilarity) {
	l.replaced[gameID] = len(edges)
}

// failingRepo fails edge replacement for one game.
type failingRepo struct {
	*memory.Store
	failFor int64
}

func (r *failingRepo) ReplaceSimilarities(ctx context.Context, gameID int64, simType models.SimilarityType, edges []models.GameSimilarity) error {
	if gameID == r.failFor {
		return errors.New("write failed")
	}
	return r.Store.ReplaceSimilarities(ctx, gameID, simType, edges)
}

func newService(repo Repository, cache Cache, listeners ...Listener) *Service {
	return NewService(repo, locks.NewLocalLocker(), cache, testLogger(), DefaultConfig(), listeners...)
}

func TestService_ComputeForGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listener := &recordingListener{replaced: map[int64]int{}}
	svc := newService(f.store, nil, listener)

	edges, err := svc.ComputeForGame(ctx, f.shooter.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, f.shooter.ID, edges[0].GameID)
	assert.Equal(t, f.twin.ID, edges[0].SimilarGameID)
	assert.Equal(t, models.SimilarityTypePrecomputedTFIDF, edges[0].SimilarityType)
	assert.Greater(t, edges[0].SimilarityScore, DefaultMinThreshold)
	assert.LessOrEqual(t, edges[0].SimilarityScore, 1.0)
	assert.Equal(t, 1, listener.replaced[f.shooter.ID])

	stored, err := f.store.ListSimilarities(ctx, f.shooter.ID, models.SimilarityTypePrecomputedTFIDF)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, edges[0].SimilarityScore, stored[0].SimilarityScore)
}

func TestService_ComputeForGameIsSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newService(f.store, nil)

	forward, err := svc.ComputeForGame(ctx, f.shooter.ID)
	require.NoError(t, err)
	backward, err := svc.ComputeForGame(ctx, f.twin.ID)
	require.NoError(t, err)

	require.Len(t, forward, 1)
	require.Len(t, backward, 1)
	assert.Equal(t, forward[0].SimilarityScore, backward[0].SimilarityScore)
}

func TestService_ComputeForGameIsNotSymmetricAcrossCorpora(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newService(f.store, nil)

	forward, err := svc.ComputeForGame(ctx, f.shooter.ID)
	require.NoError(t, err)

	addGame(t, f.store, "Orbital", "orbital", ptr("space station tycoon"), "")

	backward, err := svc.ComputeForGame(ctx, f.twin.ID)
	require.NoError(t, err)

	toTwin := edgeTo(forward, f.twin.ID)
	toShooter := edgeTo(backward, f.shooter.ID)
	require.NotNil(t, toTwin)
	require.NotNil(t, toShooter)
	assert.NotEqual(t, toTwin.SimilarityScore, toShooter.SimilarityScore, "document frequencies changed between the two runs")
}

func TestService_ComputeForGameReplacesEdgesAcrossCorpora(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Ranker.TopN = 1
	svc := NewService(f.store, locks.NewLocalLocker(), nil, testLogger(), cfg)

	first, err := svc.ComputeForGame(ctx, f.shooter.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, f.twin.ID, first[0].SimilarGameID)

	remaster := addGame(t, f.store, "Star Blaster Remastered", "star-blaster-remastered", ptr("space shooter with aliens and lasers"), "shooter")

	second, err := svc.ComputeForGame(ctx, f.shooter.ID)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, remaster.ID, second[0].SimilarGameID)

	stored, err := f.store.ListSimilarities(ctx, f.shooter.ID, models.SimilarityTypePrecomputedTFIDF)
	require.NoError(t, err)
	require.Len(t, stored, 1, "nothing of the first top-N survives")
	assert.Equal(t, second[0].SimilarGameID, stored[0].SimilarGameID)
	assert.Equal(t, second[0].SimilarityScore, stored[0].SimilarityScore)
}

func TestService_ComputeForGameReplacesEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newService(f.store, nil)

	_, err := f.store.InsertSimilarities(ctx, []models.GameSimilarity{
		{GameID: f.shooter.ID, SimilarGameID: f.farm.ID, SimilarityScore: 0.9, SimilarityType: models.SimilarityTypePrecomputedTFIDF},
		{GameID: f.shooter.ID, SimilarGameID: f.farm.ID, SimilarityScore: 0.8, SimilarityType: models.SimilarityTypeAPIProvided},
	})
	require.NoError(t, err)

	first, err := svc.ComputeForGame(ctx, f.shooter.ID)
	require.NoError(t, err)
	second, err := svc.ComputeForGame(ctx, f.shooter.ID)
	require.NoError(t, err)
	assert.Equal(t, first[0].SimilarityScore, second[0].SimilarityScore)

	precomputed, err := f.store.ListSimilarities(ctx, f.shooter.ID, models.SimilarityTypePrecomputedTFIDF)
	require.NoError(t, err)
	require.Len(t, precomputed, 1, "stale edges are removed and reruns do not duplicate")
	assert.Equal(t, f.twin.ID, precomputed[0].SimilarGameID)

	apiProvided, err := f.store.ListSimilarities(ctx, f.shooter.ID, models.SimilarityTypeAPIProvided)
	require.NoError(t, err)
	assert.Len(t, apiProvided, 1)
}

func TestService_ComputeForGameRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, nil)

	t.Run("no description", func(t *testing.T) {
		_, err := svc.ComputeForGame(context.Background(), f.blank.ID)
		assert.ErrorIs(t, err, ErrInvalidGameData)
	})

	t.Run("unknown game", func(t *testing.T) {
		_, err := svc.ComputeForGame(context.Background(), 404)
		assert.ErrorIs(t, err, ErrInvalidGameData)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestService_ComputeAll(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, nil)

	report, err := svc.ComputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", report.Status)
	assert.Equal(t, 3, report.GamesProcessed)
	assert.Equal(t, 0, report.GamesFailed)
	assert.Equal(t, 2, report.SimilaritiesComputed)

	farm, err := f.store.ListSimilarities(context.Background(), f.farm.ID, models.SimilarityTypePrecomputedTFIDF)
	require.NoError(t, err)
	assert.Empty(t, farm)
}

func TestService_ComputeAllIsDeterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newService(f.store, nil)

	_, err := svc.ComputeAll(ctx)
	require.NoError(t, err)
	first, err := f.store.ListSimilarities(ctx, f.twin.ID, models.SimilarityTypePrecomputedTFIDF)
	require.NoError(t, err)

	_, err = svc.ComputeAll(ctx)
	require.NoError(t, err)
	second, err := f.store.ListSimilarities(ctx, f.twin.ID, models.SimilarityTypePrecomputedTFIDF)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].SimilarGameID, second[i].SimilarGameID)
		assert.Equal(t, first[i].SimilarityScore, second[i].SimilarityScore)
	}
}

func TestService_ComputeAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	broken, err := f.store.CreateGame(ctx, models.CreateGameRequest{Name: "Broken", Slug: "broken", Description: ptr("bad \xff text")})
	require.NoError(t, err)
	stale := []models.GameSimilarity{
		{GameID: broken.ID, SimilarGameID: f.farm.ID, SimilarityScore: 0.5, SimilarityType: models.SimilarityTypePrecomputedTFIDF},
		{GameID: f.farm.ID, SimilarGameID: f.twin.ID, SimilarityScore: 0.5, SimilarityType: models.SimilarityTypePrecomputedTFIDF},
	}
	_, err = f.store.InsertSimilarities(ctx, stale)
	require.NoError(t, err)

	svc := newService(&failingRepo{Store: f.store, failFor: f.farm.ID}, nil)
	report, err := svc.ComputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PARTIAL", report.Status)
	assert.Equal(t, 2, report.GamesFailed)
	assert.Equal(t, 2, report.GamesProcessed)
	assert.Equal(t, 2, report.SimilaritiesComputed)

	for _, id := range []int64{broken.ID, f.farm.ID} {
		edges, err := f.store.ListSimilarities(ctx, id, models.SimilarityTypePrecomputedTFIDF)
		require.NoError(t, err)
		assert.Len(t, edges, 1, "failed items keep their previous edges")
	}
}

func TestService_ComputeAllEmptyCorpus(t *testing.T) {
	svc := newService(memory.New(), nil)

	report, err := svc.ComputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EMPTY", report.Status)
	assert.Zero(t, report.GamesProcessed)
}

func TestService_GetSimilarGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := newRecordingCache()
	svc := newService(f.store, cache)

	_, err := svc.ComputeForGame(ctx, f.shooter.ID)
	require.NoError(t, err)
	assert.Contains(t, cache.invalidated, f.shooter.ID)

	games, err := svc.GetSimilarGames(ctx, f.shooter.ID, 5)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Star Blaster II", games[0].Name)
	assert.Equal(t, 0, cache.hits)

	cached, err := svc.GetSimilarGames(ctx, f.shooter.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, games, cached)
	assert.Equal(t, 1, cache.hits)

	_, err = svc.GetSimilarGames(ctx, 404, 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_GetSimilarGamesServesComputedEdgesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newService(f.store, nil)

	_, err := f.store.InsertSimilarities(ctx, []models.GameSimilarity{
		{GameID: f.shooter.ID, SimilarGameID: f.twin.ID, SimilarityScore: 0.8, SimilarityType: models.SimilarityTypeAPIProvided},
		{GameID: f.shooter.ID, SimilarGameID: f.farm.ID, SimilarityScore: 0.8, SimilarityType: models.SimilarityTypeAPIProvided},
	})
	require.NoError(t, err)
	edges, err := svc.ComputeForGame(ctx, f.shooter.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	games, err := svc.GetSimilarGames(ctx, f.shooter.ID, 10)
	require.NoError(t, err)
	require.Len(t, games, 1, "the twin is listed once")
	assert.Equal(t, f.twin.ID, games[0].GameID)
	assert.Equal(t, models.SimilarityTypePrecomputedTFIDF, games[0].SimilarityType)
	assert.Equal(t, edges[0].SimilarityScore, games[0].SimilarityScore)
}

func TestBuildDocuments(t *testing.T) {
	games := []models.Game{{ID: 1, Name: "A", Description: ptr("text")}}
	tags := []models.TaggedGame{
		{GameID: 1, Name: "Action", Category: models.TagCategoryGenre},
		{GameID: 1, Name: "Indie", Category: models.TagCategoryGenre},
		{GameID: 1, Name: "PC", Category: models.TagCategoryPlatform},
		{GameID: 1, Name: "Dark", Category: models.TagCategoryTheme},
	}

	docs := BuildDocuments(games, tags)
	require.Len(t, docs, 1)
	assert.Equal(t, map[vectorizer.Field]string{
		vectorizer.FieldDescription: "text",
		vectorizer.FieldGenre:       "Action Indie",
		vectorizer.FieldTheme:       "Dark",
	}, docs[0].Fields)
}
