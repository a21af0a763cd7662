package etl

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

const rawgCatalog = `[
	{"rawg_id": 1, "name": "Hades", "slug": "hades", "released": "2020-09-17", "rating": 4.5, "ratings_count": 100,
	 "description_raw": "Battle out of hell in this rogue-like dungeon crawler", "genres": ["Action", "Indie"], "tags": ["Roguelike"]},
	{"rawg_id": 2, "name": "Celeste", "slug": "celeste", "released": "2018-01-25",
	 "description_raw": "Help Madeline survive her inner demons on her journey to the top of Celeste Mountain", "genres": ["Platformer"]},
	{"rawg_id": 1, "name": "Hades", "slug": "hades"}
]`

var igdbCatalog = `[
	{"igdb_id": 100, "name": "Hades", "slug": "hades-igdb", "first_release_date": ` + unix(2020, 9, 17) + `, "total_rating": 93,
	 "total_rating_count": 50, "summary": "A god-like rogue-like dungeon crawler", "genres": ["Roguelike", "Action"],
	 "themes": ["Fantasy"], "similar_games": ["102"]},
	{"igdb_id": 101, "name": "Celeste", "slug": "celeste", "similar_games": ["100"]},
	{"igdb_id": 102, "name": "Dead Cells", "slug": "dead-cells", "summary": "A rogue-lite metroidvania action dungeon crawler",
	 "genres": ["Roguelike", "Action"], "similar_games": ["100", "abc", "102", "999"]}
]`

func unix(year int, month time.Month, day int) string {
	return strconv.FormatInt(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix(), 10)
}

type recordingRunListener struct {
	reports []models.EtlReport
	errs    []error
}

func (l *recordingRunListener) RunCompleted(_ context.Context, report models.EtlReport, err error) {
	l.reports = append(l.reports, report)
	l.errs = append(l.errs, err)
}

type failingMerger struct{}

func (failingMerger) DetectAndMerge(context.Context) (int, error) {
	return 0, errors.New("merge store unavailable")
}

func newOrchestrator(s *memory.Store, merger Merger, recomputer Recomputer, cfg Config, listeners ...Listener) *Orchestrator {
	return NewOrchestrator(testLogger(), s, locks.NewLocalLocker(), normalizers.NewTagNormalizer(normalizers.DefaultTagTables()),
		merger, recomputer, cfg, listeners...)
}

func newMergeEngine(s *memory.Store) *merging.Engine {
	return merging.NewEngine(testLogger(), s, locks.NewLocalLocker(), matching.NewDetector(matching.DefaultDetectorConfig()))
}

func TestOrchestrator_Run(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	listener := &recordingRunListener{}

	cfg := DefaultConfig()
	cfg.RecomputeSimilarities = true
	recomputer := similarity.NewService(s, locks.NewLocalLocker(), nil, testLogger(), similarity.DefaultConfig())
	orchestrator := newOrchestrator(s, newMergeEngine(s), recomputer, cfg, listener)

	report, err := orchestrator.Run(ctx, RunRequest{
		RawgPath: writeCatalog(t, "rawg.json", rawgCatalog),
		IgdbPath: writeCatalog(t, "igdb.json", igdbCatalog),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.JobIDs, 5)
	assert.Equal(t, 2, report.RawgGamesInserted)
	assert.Equal(t, 1, report.RawgGamesSkipped)
	assert.Equal(t, 2, report.IgdbGamesInserted)
	assert.Equal(t, 1, report.IgdbGamesSkipped, "IGDB Celeste collides with the RAWG slug")
	assert.Equal(t, 2, report.SimilaritiesInserted)
	assert.Equal(t, 1, report.GamesMerged)
	require.NotNil(t, report.Recompute)
	assert.Equal(t, "COMPLETED", report.Recompute.Status)

	hades, err := s.GetGameByExternalID(ctx, models.SourceIgdb, 100)
	require.NoError(t, err)
	require.NotNil(t, hades.RawgID, "RAWG Hades was merged into IGDB Hades")
	assert.Equal(t, int64(1), *hades.RawgID)
	assert.Equal(t, 150, hades.RatingCount)
	assert.InDelta(t, 9.15, *hades.Rating, 1e-9)

	rawgOnly, err := s.ListGamesOnlyFrom(ctx, models.SourceRawg)
	require.NoError(t, err)
	require.Len(t, rawgOnly, 1)
	assert.Equal(t, "Celeste", rawgOnly[0].Name)

	deadCells, err := s.GetGameByExternalID(ctx, models.SourceIgdb, 102)
	require.NoError(t, err)
	apiEdges, err := s.ListSimilarities(ctx, deadCells.ID, models.SimilarityTypeAPIProvided)
	require.NoError(t, err)
	require.Len(t, apiEdges, 1)
	assert.Equal(t, hades.ID, apiEdges[0].SimilarGameID)

	tfidf, err := s.ListSimilarities(ctx, deadCells.ID, models.SimilarityTypePrecomputedTFIDF)
	require.NoError(t, err)
	assert.NotEmpty(t, tfidf, "the recompute phase ran after the merge")

	for _, id := range report.JobIDs {
		job, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, report.RunID, job.RunID)
		assert.Equal(t, models.JobStatusCompleted, job.Status, job.JobName)
	}

	require.Len(t, listener.reports, 1)
	assert.NoError(t, listener.errs[0])
	assert.Equal(t, report.RunID, listener.reports[0].RunID)
}

func TestOrchestrator_RunFailsOnImportError(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	listener := &recordingRunListener{}

	report, err := newOrchestrator(s, newMergeEngine(s), nil, DefaultConfig(), listener).Run(ctx, RunRequest{
		RawgPath: filepath.Join(t.TempDir(), "missing.json"),
		IgdbPath: writeCatalog(t, "igdb.json", igdbCatalog),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatalIngestion)
	require.Len(t, report.JobIDs, 1, "the run stops after the failing phase")

	job, err := s.GetJob(ctx, report.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, PhaseRawgImport, job.JobName)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)

	require.Len(t, listener.errs, 1)
	assert.ErrorIs(t, listener.errs[0], ErrFatalIngestion)
}

func TestOrchestrator_RunContinuesAfterBestEffortFailure(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	report, err := newOrchestrator(s, failingMerger{}, nil, DefaultConfig()).Run(ctx, RunRequest{
		RawgPath: writeCatalog(t, "rawg.json", rawgCatalog),
		IgdbPath: writeCatalog(t, "igdb.json", igdbCatalog),
	})
	require.NoError(t, err)
	assert.Zero(t, report.GamesMerged)
	assert.Nil(t, report.Recompute, "recompute is off by default")
	require.Len(t, report.JobIDs, 4)

	mergeJob, err := s.GetJob(ctx, report.JobIDs[3])
	require.NoError(t, err)
	assert.Equal(t, PhaseMerge, mergeJob.JobName)
	assert.Equal(t, models.JobStatusFailed, mergeJob.Status)
}

func TestOrchestrator_RunMergesFuzzyDuplicateAndIndexesDescribedGames(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	rawg := `[
		{"rawg_id": 1, "name": "Stardew Valley", "slug": "stardew-valley", "released": "2016-02-26",
		 "description_raw": "Farming life sim in a quiet valley town", "genres": ["Simulation"]},
		{"rawg_id": 2, "name": "Terraria", "slug": "terraria", "released": "2011-05-16",
		 "description_raw": "Dig fight explore and build in a sandbox adventure", "genres": ["Action", "Adventure"]},
		{"rawg_id": 3, "name": "Limbo", "slug": "limbo", "released": "2010-07-21", "genres": ["Puzzle"]}
	]`
	igdb := `[
		{"igdb_id": 100, "name": "Stardew Valey", "slug": "stardew-valey", "first_release_date": ` + unix(2016, 2, 26) + `,
		 "summary": "Farming life sim with crops and friends in a quiet valley town", "genres": ["Simulator"]},
		{"igdb_id": 101, "name": "Starbound", "slug": "starbound", "first_release_date": ` + unix(2016, 7, 22) + `,
		 "summary": "Explore and build across planets in a sandbox space adventure", "genres": ["Action", "Adventure"]}
	]`

	cfg := DefaultConfig()
	cfg.RecomputeSimilarities = true
	simCfg := similarity.DefaultConfig()
	simCfg.Ranker.TopN = 1
	recomputer := similarity.NewService(s, locks.NewLocalLocker(), nil, testLogger(), simCfg)

	report, err := newOrchestrator(s, newMergeEngine(s), recomputer, cfg).Run(ctx, RunRequest{
		RawgPath: writeCatalog(t, "rawg.json", rawg),
		IgdbPath: writeCatalog(t, "igdb.json", igdb),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.RawgGamesInserted)
	assert.Equal(t, 2, report.IgdbGamesInserted)
	assert.Equal(t, 1, report.GamesMerged)

	stardew, err := s.GetGameByExternalID(ctx, models.SourceIgdb, 100)
	require.NoError(t, err)
	require.NotNil(t, stardew.RawgID)
	assert.Equal(t, int64(1), *stardew.RawgID)
	_, err = s.GetGameBySlug(ctx, "stardew-valley")
	assert.Error(t, err, "the RAWG copy is gone after the merge")

	limbo, err := s.GetGameBySlug(ctx, "limbo")
	require.NoError(t, err)
	terraria, err := s.GetGameBySlug(ctx, "terraria")
	require.NoError(t, err)
	starbound, err := s.GetGameBySlug(ctx, "starbound")
	require.NoError(t, err)

	described := map[int64]bool{stardew.ID: true, terraria.ID: true, starbound.ID: true}
	total := 0
	for _, id := range []int64{stardew.ID, terraria.ID, starbound.ID, limbo.ID} {
		edges, err := s.ListSimilarities(ctx, id, models.SimilarityTypePrecomputedTFIDF)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(edges), simCfg.Ranker.TopN)
		for _, e := range edges {
			assert.True(t, described[e.GameID], "edge from undescribed game %d", e.GameID)
			assert.True(t, described[e.SimilarGameID], "edge to undescribed game %d", e.SimilarGameID)
			assert.GreaterOrEqual(t, e.SimilarityScore, simCfg.Ranker.MinThreshold)
		}
		total += len(edges)
	}
	assert.Positive(t, total)

	limboEdges, err := s.ListSimilarities(ctx, limbo.ID, models.SimilarityTypePrecomputedTFIDF)
	require.NoError(t, err)
	assert.Empty(t, limboEdges)

	terrariaEdges, err := s.ListSimilarities(ctx, terraria.ID, models.SimilarityTypePrecomputedTFIDF)
	require.NoError(t, err)
	require.Len(t, terrariaEdges, 1)
	assert.Equal(t, starbound.ID, terrariaEdges[0].SimilarGameID)
}
