package etl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/store"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func ptr[T any](v T) *T { return &v }

func startJob(t *testing.T, s *memory.Store, name string) *Job {
	t.Helper()
	job, err := NewJobTracker(s, testLogger()).Start(context.Background(), "run-1", name, "TEST")
	require.NoError(t, err)
	return job
}

func jobLogs(t *testing.T, s *memory.Store, job *Job, level models.LogLevel) []string {
	t.Helper()
	logs, err := s.ListJobLogs(context.Background(), job.ID())
	require.NoError(t, err)
	var out []string
	for _, l := range logs {
		if l.Level == level {
			out = append(out, l.Message)
		}
	}
	return out
}

func writeCatalog(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func tagNames(t *testing.T, s *memory.Store, gameID int64) map[string]float64 {
	t.Helper()
	tags, err := s.ListGameTags(context.Background(), gameID)
	require.NoError(t, err)
	out := make(map[string]float64, len(tags))
	for _, tag := range tags {
		out[string(tag.Category)+":"+tag.NormalizedName] = tag.Weight
	}
	return out
}

func TestJobTracker(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	t.Run("completes with partial status when records failed", func(t *testing.T) {
		job := startJob(t, s, "partial")
		job.Infof(ctx, "hello %s", "world")
		job.Warnf(ctx, "careful")
		job.Errorf(ctx, errors.New("boom"), "broken")
		require.NoError(t, job.Complete(ctx, 10, 2))

		stored, err := s.GetJob(ctx, job.ID())
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPartial, stored.Status)
		assert.Equal(t, 10, stored.RecordsProcessed)
		assert.Equal(t, 2, stored.RecordsFailed)
		assert.NotNil(t, stored.CompletedAt)

		logs, err := s.ListJobLogs(ctx, job.ID())
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, "hello world", logs[0].Message)
		require.NotNil(t, logs[2].Details)
		assert.Equal(t, "boom", *logs[2].Details)
	})

	t.Run("completes cleanly", func(t *testing.T) {
		job := startJob(t, s, "clean")
		require.NoError(t, job.Complete(ctx, 3, 0))
		assert.Equal(t, models.JobStatusCompleted, job.Snapshot().Status)
	})

	t.Run("fails with the cause", func(t *testing.T) {
		job := startJob(t, s, "failed")
		require.NoError(t, job.Fail(ctx, errors.New("file not found")))

		stored, err := s.GetJob(ctx, job.ID())
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "file not found", *stored.ErrorMessage)
	})
}

func TestTagExtractor_Extract(t *testing.T) {
	extractor := NewTagExtractor(normalizers.NewTagNormalizer(normalizers.DefaultTagTables()))

	assignments, err := extractor.Extract(TagLists{
		models.TagCategoryKeyword:  {"Roguelike"},
		models.TagCategoryGenre:    {"RPG", "role-playing", "  ", "Action"},
		models.TagCategoryPlatform: {"PC"},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.TagAssignment{
		{Name: "RPG", NormalizedName: "role-playing-game", Category: models.TagCategoryGenre, Weight: 1.0},
		{Name: "Action", NormalizedName: "action", Category: models.TagCategoryGenre, Weight: 1.0},
		{Name: "PC", NormalizedName: "pc", Category: models.TagCategoryPlatform, Weight: 0.53},
		{Name: "Roguelike", NormalizedName: "roguelike", Category: models.TagCategoryKeyword, Weight: 0.67},
	}, assignments, "categories in declaration order, synonyms assigned once")

	t.Run("nothing to assign", func(t *testing.T) {
		assignments, err := extractor.Extract(TagLists{models.TagCategoryGenre: {" ", ""}})
		require.NoError(t, err)
		assert.Empty(t, assignments)
	})
}

func newRawgImporter(s *memory.Store, batch BatchConfig) *RawgImporter {
	return NewRawgImporter(testLogger(), s, locks.NewLocalLocker(), normalizers.NewTagNormalizer(normalizers.DefaultTagTables()), batch)
}

func newIgdbImporter(s *memory.Store) *IgdbImporter {
	return NewIgdbImporter(testLogger(), s, locks.NewLocalLocker(), normalizers.NewTagNormalizer(normalizers.DefaultTagTables()), DefaultBatchConfig())
}

func TestRawgImporter_Import(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	job := startJob(t, s, PhaseRawgImport)

	result, err := newRawgImporter(s, DefaultBatchConfig()).Import(ctx, job, []models.RawgGame{
		{
			RawgID: 1, Name: "Hades", Slug: "hades", Released: ptr("2020-09-17"),
			Rating: ptr(4.47), RatingsCount: ptr(1200), DescriptionRaw: ptr("Defy the god of the dead"),
			Website: ptr("https://supergiant.example"), BackgroundImage: ptr("hades.jpg"),
			Genres: []string{"Action", "Indie"}, Tags: []string{"Roguelike"}, Developers: []string{"Supergiant Games"},
		},
		{RawgID: 2, Name: "The Witcher 3: Wild Hunt", Rating: ptr(5.5), DescriptionRaw: ptr("  ")},
		{RawgID: 1, Name: "Hades again", Slug: "hades-again"},
		{RawgID: 3, Name: "Hades copy", Slug: "HADES"},
		{RawgID: 0, Name: "No id"},
		{RawgID: 4, Name: "!!!"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ImportResult{Inserted: 2, Skipped: 4}, result)

	hades, err := s.GetGameByExternalID(ctx, models.SourceRawg, 1)
	require.NoError(t, err)
	assert.Equal(t, "Hades", hades.Name)
	assert.InDelta(t, 8.94, *hades.Rating, 1e-9)
	assert.Equal(t, 1200, hades.RatingCount)
	assert.Equal(t, time.Date(2020, 9, 17, 0, 0, 0, 0, time.UTC), *hades.ReleaseDate)
	assert.Equal(t, "https://supergiant.example", *hades.WebsiteURL)
	assert.Equal(t, "hades.jpg", *hades.BackgroundImageURL)
	assert.Equal(t, map[string]float64{
		"GENRE:action":               1.0,
		"GENRE:indie":                1.0,
		"DEVELOPER:supergiant-games": 0.40,
		"KEYWORD:roguelike":          0.67,
	}, tagNames(t, s, hades.ID))

	witcher, err := s.GetGameByExternalID(ctx, models.SourceRawg, 2)
	require.NoError(t, err)
	assert.Equal(t, "the-witcher-3-wild-hunt", witcher.Slug, "missing slug is derived from the name")
	assert.Equal(t, 10.0, *witcher.Rating, "ratings are clamped")
	assert.Nil(t, witcher.Description, "blank descriptions are dropped")

	warnings := jobLogs(t, s, job, models.LogLevelWarn)
	duplicates := 0
	for _, w := range warnings {
		if strings.HasPrefix(w, "Duplicate RAWG game detected") {
			duplicates++
		}
	}
	assert.Equal(t, 2, duplicates)
}

func TestRawgImporter_ImportFile(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	t.Run("missing file is fatal", func(t *testing.T) {
		job := startJob(t, s, PhaseRawgImport)
		_, err := newRawgImporter(s, DefaultBatchConfig()).ImportFile(ctx, job, filepath.Join(t.TempDir(), "missing.json"))
		assert.ErrorIs(t, err, ErrFatalIngestion)
	})

	t.Run("malformed file is fatal", func(t *testing.T) {
		job := startJob(t, s, PhaseRawgImport)
		path := writeCatalog(t, "rawg.json", `[{"rawg_id": 1, "name": "Hades"`)
		_, err := newRawgImporter(s, DefaultBatchConfig()).ImportFile(ctx, job, path)
		assert.ErrorIs(t, err, ErrFatalIngestion)
		assert.NotEmpty(t, jobLogs(t, s, job, models.LogLevelError))
	})

	t.Run("imports in batches", func(t *testing.T) {
		job := startJob(t, s, PhaseRawgImport)
		path := writeCatalog(t, "rawg.json", `[
			{"rawg_id": 10, "name": "Celeste", "slug": "celeste"},
			{"rawg_id": 11, "name": "Doom", "slug": "doom"},
			{"rawg_id": 12, "name": "Braid", "slug": "braid"}
		]`)
		result, err := newRawgImporter(s, BatchConfig{BatchSize: 2, LogInterval: 2}).ImportFile(ctx, job, path)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Inserted)

		var progress []string
		for _, msg := range jobLogs(t, s, job, models.LogLevelInfo) {
			if strings.HasPrefix(msg, "Progress:") {
				progress = append(progress, msg)
			}
		}
		assert.Equal(t, []string{
			"Progress: 2/3 (66%) - Inserted: 2, Skipped: 0",
			"Progress: 3/3 (100%) - Inserted: 3, Skipped: 0",
		}, progress)
	})
}

func TestIgdbImporter_Import(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	job := startJob(t, s, PhaseIgdbImport)
	release := time.Date(2018, 1, 25, 0, 0, 0, 0, time.UTC)

	result, err := newIgdbImporter(s).Import(ctx, job, []models.IgdbGame{
		{
			IgdbID: 100, Name: "Celeste", Slug: "celeste", Storyline: ptr("Climb the mountain"),
			FirstReleaseDate: ptr(release.Unix()), TotalRating: ptr(92.5), TotalRatingCount: ptr(300),
			Rating: ptr(10.0), RatingCount: ptr(5), CoverURL: ptr("cover.jpg"), URL: ptr("https://igdb.example/celeste"),
			Themes: []string{"Science Fiction"}, PlayerPerspectives: []string{"Side view"},
			SimilarGames: []string{"1", "x", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"},
		},
		{IgdbID: 101, Name: "Braid", Slug: "braid", Summary: ptr("Time puzzles"), Storyline: ptr("ignored"), Rating: ptr(80.0), RatingCount: ptr(40)},
		{IgdbID: 100, Name: "Celeste", Slug: "celeste-dup", SimilarGames: []string{"101"}},
		{IgdbID: 102, Name: "Nothing Similar", Slug: "nothing-similar", SimilarGames: []string{"abc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ImportResult{Inserted: 3, Skipped: 1}, result.ImportResult)
	assert.Equal(t, map[int64][]int64{
		100: {101},
	}, result.SimilarGames, "the latest references of a game win and games without numeric references are left out")

	celeste, err := s.GetGameByExternalID(ctx, models.SourceIgdb, 100)
	require.NoError(t, err)
	assert.InDelta(t, 9.25, *celeste.Rating, 1e-9)
	assert.Equal(t, 300, celeste.RatingCount)
	assert.Equal(t, "Climb the mountain", *celeste.Description)
	assert.Equal(t, release, *celeste.ReleaseDate)
	assert.Equal(t, "cover.jpg", *celeste.BackgroundImageURL)
	assert.Equal(t, "https://igdb.example/celeste", *celeste.WebsiteURL)
	assert.Equal(t, map[string]float64{
		"THEME:sci-fi":                 0.80,
		"PLAYER_PERSPECTIVE:side-view": 0.60,
	}, tagNames(t, s, celeste.ID))

	braid, err := s.GetGameByExternalID(ctx, models.SourceIgdb, 101)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, *braid.Rating, 1e-9)
	assert.Equal(t, 40, braid.RatingCount)
	assert.Equal(t, "Time puzzles", *braid.Description)
}

func TestParseSimilarGames(t *testing.T) {
	tests := []struct {
		name string
		refs []string
		want []int64
	}{
		{"empty", nil, []int64{}},
		{"drops non numeric", []string{"12", "Hades", " 13 "}, []int64{12, 13}},
		{"keeps the first ten numeric", []string{"a", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSimilarGames(tt.refs))
		})
	}
}

func TestSimilarGamesResolver_Resolve(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ids := map[int64]int64{}
	for _, igdbID := range []int64{1, 2, 3} {
		g, err := s.CreateGame(ctx, models.CreateGameRequest{IgdbID: ptr(igdbID), Name: "Game", Slug: "game-" + string(rune('a'+igdbID))})
		require.NoError(t, err)
		ids[igdbID] = g.ID
	}
	_, err := s.InsertSimilarities(ctx, []models.GameSimilarity{{
		GameID: ids[1], SimilarGameID: ids[3], SimilarityScore: 0.8, SimilarityType: models.SimilarityTypeAPIProvided,
	}})
	require.NoError(t, err)

	job := startJob(t, s, PhaseSimilarGames)
	result, err := NewSimilarGamesResolver(s).Resolve(ctx, job, map[int64][]int64{
		1:  {2, 1, 3, 999},
		2:  {1, 1},
		77: {1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, ResolveResult{Inserted: 2, Skipped: 6}, result)

	edges, err := s.ListSimilarities(ctx, ids[1], models.SimilarityTypeAPIProvided)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, APIProvidedScore, e.SimilarityScore)
	}

	back, err := s.ListSimilarities(ctx, ids[2], models.SimilarityTypeAPIProvided)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, ids[1], back[0].SimilarGameID)

	assert.Contains(t, jobLogs(t, s, job, models.LogLevelWarn), "Source game not found for IGDB ID: 77")

	t.Run("nothing to resolve", func(t *testing.T) {
		result, err := NewSimilarGamesResolver(s).Resolve(ctx, job, nil)
		require.NoError(t, err)
		assert.Zero(t, result)
	})
}

type failingCreateRepo struct {
	*memory.Store
	failName string
	cancel   context.CancelFunc
}

func (r *failingCreateRepo) CreateGameWithTags(ctx context.Context, req models.CreateGameRequest, tags []models.TagAssignment) (*models.Game, error) {
	if req.Name == r.failName {
		if r.cancel != nil {
			r.cancel()
			return nil, ctx.Err()
		}
		return nil, errors.New("add game tag: connection reset")
	}
	return r.Store.CreateGameWithTags(ctx, req, tags)
}

func TestRawgImporter_FailedTagWriteLeavesNothing(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	normalizer := normalizers.NewTagNormalizer(normalizers.DefaultTagTables())
	games := []models.RawgGame{{RawgID: 60, Name: "Hades", Slug: "hades", Genres: []string{"Action", "Indie"}}}

	job := startJob(t, s, "broken tags")
	broken := NewRawgImporter(testLogger(), &failingCreateRepo{Store: s, failName: "Hades"}, locks.NewLocalLocker(), normalizer, DefaultBatchConfig())
	result, err := broken.Import(ctx, job, games)
	require.NoError(t, err)
	assert.Equal(t, models.ImportResult{Skipped: 1, Failed: 1}, result)

	_, err = s.GetGameByExternalID(ctx, models.SourceRawg, 60)
	assert.ErrorIs(t, err, store.ErrNotFound, "no half-imported game is left behind")

	job = startJob(t, s, "retry")
	result, err = NewRawgImporter(testLogger(), s, locks.NewLocalLocker(), normalizer, DefaultBatchConfig()).Import(ctx, job, games)
	require.NoError(t, err)
	assert.Equal(t, models.ImportResult{Inserted: 1}, result, "a rerun imports the record instead of skipping it")

	hades, err := s.GetGameByExternalID(ctx, models.SourceRawg, 60)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"GENRE:action": 1.0, "GENRE:indie": 1.0}, tagNames(t, s, hades.ID))
}

func TestProcessBatched(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	t.Run("counts failed records as skipped", func(t *testing.T) {
		job := startJob(t, s, "failures")
		importer := NewRawgImporter(testLogger(), &failingCreateRepo{Store: s, failName: "Broken"}, locks.NewLocalLocker(),
			normalizers.NewTagNormalizer(normalizers.DefaultTagTables()), DefaultBatchConfig())

		result, err := importer.Import(ctx, job, []models.RawgGame{
			{RawgID: 50, Name: "Broken", Slug: "broken"},
			{RawgID: 51, Name: "Fine", Slug: "fine"},
		})
		require.NoError(t, err)
		assert.Equal(t, models.ImportResult{Inserted: 1, Skipped: 1, Failed: 1}, result)
		assert.NotEmpty(t, jobLogs(t, s, job, models.LogLevelError))
	})

	t.Run("fatal result stops the batch", func(t *testing.T) {
		job := startJob(t, s, "fatal")
		calls := 0
		result, err := processBatched(ctx, job, models.SourceRawg, DefaultBatchConfig(), []int{1, 2, 3}, func(_ context.Context, item int) Result {
			calls++
			if item == 2 {
				return Fatal(errors.New("disk gone"))
			}
			return Success(int64(item))
		})
		assert.ErrorIs(t, err, ErrFatalIngestion)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 1, result.Inserted)
	})

	t.Run("cancellation during a write is fatal", func(t *testing.T) {
		job := startJob(t, s, "cancelled write")
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		importer := NewRawgImporter(testLogger(), &failingCreateRepo{Store: s, failName: "Stalled", cancel: cancel}, locks.NewLocalLocker(),
			normalizers.NewTagNormalizer(normalizers.DefaultTagTables()), DefaultBatchConfig())

		result, err := importer.Import(cctx, job, []models.RawgGame{
			{RawgID: 70, Name: "Stalled", Slug: "stalled"},
			{RawgID: 71, Name: "Never Reached", Slug: "never-reached"},
		})
		assert.ErrorIs(t, err, ErrFatalIngestion)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, result.Inserted)

		_, err = s.GetGameByExternalID(ctx, models.SourceRawg, 71)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		job := startJob(t, s, "cancelled")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := processBatched(cctx, job, models.SourceRawg, DefaultBatchConfig(), []int{1}, func(context.Context, int) Result {
			return Success(1)
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDecodeCatalog(t *testing.T) {
	games, err := DecodeCatalog[models.IgdbGame](strings.NewReader(`[{"igdb_id": 7, "name": "Okami", "similar_games": ["8"]}]`))
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, int64(7), games[0].IgdbID)
	assert.Equal(t, []string{"8"}, games[0].SimilarGames)

	_, err = DecodeCatalog[models.IgdbGame](strings.NewReader(`{"igdb_id": 7}`))
	assert.ErrorIs(t, err, ErrFatalIngestion)
}
