package engine

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bricklore/brickengine/internal/cache"
	"github.com/bricklore/brickengine/internal/catalog"
	"github.com/bricklore/brickengine/internal/config"
	"github.com/bricklore/brickengine/internal/embedding"
	"github.com/bricklore/brickengine/internal/observability"
	"github.com/bricklore/brickengine/internal/source"
	"github.com/bricklore/brickengine/internal/store"
)

type stubAdapter struct {
	name    string
	records []catalog.RawRecord
	err     error
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Fetch(ctx context.Context) ([]catalog.RawRecord, error) {
	return s.records, s.err
}

type blockingAdapter struct {
	name    string
	started chan struct{}
	release chan struct{}
}

func (b *blockingAdapter) Name() string { return b.name }

func (b *blockingAdapter) Fetch(ctx context.Context) ([]catalog.RawRecord, error) {
	close(b.started)
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failingEmbedder breaks index builds while telling the truth about its
// dimension.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding service unavailable")
}

func (failingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding service unavailable")
}

func (failingEmbedder) Model() string  { return "broken" }
func (failingEmbedder) Dimension() int { return 64 }

func rec(src, name, setNum, theme string, fields map[string]interface{}) catalog.RawRecord {
	all := map[string]interface{}{"name": name, "set_num": setNum, "theme": theme}
	for k, v := range fields {
		all[k] = v
	}
	return catalog.RawRecord{Source: src, Fields: all}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Index.Dir = t.TempDir()
	cfg.Sources.Priority = []string{"rebrickable", "brickset", "brickowl"}
	cfg.Retrieval.CacheResults = true
	cfg.Cache.TTL = time.Minute
	return cfg
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.NewWithDB(db, "sqlite3", observability.NopLogger())
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestEngine(t *testing.T, st *store.Store, cfg *config.Config, adapters ...source.Adapter) *Engine {
	t.Helper()
	return New(cfg, observability.NopLogger(), st,
		embedding.NewLocalEmbedder(64), cache.NewMemoryClient(100), adapters)
}

func TestRunLoadCycleEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	st := testStore(t)
	ctx := context.Background()

	adapters := []source.Adapter{
		&stubAdapter{name: "rebrickable", records: []catalog.RawRecord{
			rec("rebrickable", "X-Wing Starfighter", "75301", "Star Wars", map[string]interface{}{"num_parts": 474, "year": 2021}),
			rec("rebrickable", "Medieval Castle", "31120", "Creator", nil),
			{Source: "rebrickable", Fields: map[string]interface{}{"set_num": "99999"}}, // no name: dropped
		}},
		&stubAdapter{name: "brickset", records: []catalog.RawRecord{
			rec("brickset", "X-Wing Starfighter", "75301", "Star Wars", map[string]interface{}{"retail_price": 49.99}),
		}},
		&stubAdapter{name: "brickowl", err: errors.New("connection refused")},
	}

	e := newTestEngine(t, st, cfg, adapters...)
	report, err := e.RunLoadCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Generation)
	assert.Equal(t, 4, report.RecordsIn)
	assert.Equal(t, 2, report.RecordsDeduped)
	assert.Equal(t, 1, report.RecordsDropped)
	require.Len(t, report.SourceErrors, 1)
	assert.Contains(t, report.SourceErrors[0], "brickowl")

	// The duplicate X-Wing merged fields from both sources.
	xwing, err := e.GetItem(ctx, catalog.IdentityKey("X-Wing Starfighter", "75301", "Star Wars"))
	require.NoError(t, err)
	require.NotNil(t, xwing.Price)
	assert.InDelta(t, 49.99, *xwing.Price, 1e-9)
	assert.ElementsMatch(t, []string{"rebrickable", "brickset"}, xwing.ContributingSources)

	// The load is recorded in history.
	history, err := e.LoadHistory(ctx, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, report.JobID, history[0].JobID)
	assert.Equal(t, store.LoadStatusSucceeded, history[0].Status)
}

func TestRunLoadCycleRejectsOverlap(t *testing.T) {
	cfg := testConfig(t)
	st := testStore(t)

	blocker := &blockingAdapter{
		name:    "rebrickable",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := newTestEngine(t, st, cfg, blocker)

	done := make(chan error, 1)
	go func() {
		_, err := e.RunLoadCycle(context.Background())
		done <- err
	}()

	<-blocker.started
	_, err := e.RunLoadCycle(context.Background())
	assert.ErrorIs(t, err, ErrLoadInProgress)

	close(blocker.release)
	require.NoError(t, <-done)
}

func TestRunLoadCycleIndexFailureKeepsPriorSnapshot(t *testing.T) {
	cfg := testConfig(t)
	st := testStore(t)
	ctx := context.Background()

	good := &stubAdapter{name: "rebrickable", records: []catalog.RawRecord{
		rec("rebrickable", "X-Wing Starfighter", "75301", "Star Wars", nil),
	}}
	e := newTestEngine(t, st, cfg, good)
	_, err := e.RunLoadCycle(ctx)
	require.NoError(t, err)

	broken := New(cfg, observability.NopLogger(), st, failingEmbedder{}, cache.NewMemoryClient(100), []source.Adapter{good})
	_, err = broken.RunLoadCycle(ctx)
	require.ErrorIs(t, err, ErrIndexBuild)

	// The first snapshot is still active and queryable.
	gen, err := st.ActiveGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	_, err = st.GetItem(ctx, catalog.IdentityKey("X-Wing Starfighter", "75301", "Star Wars"))
	require.NoError(t, err)

	// The failed cycle is recorded in history.
	history, err := st.LoadHistory(ctx, 5)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.LoadStatusFailed, history[0].Status)
}

func TestAnswerQueryEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	st := testStore(t)
	ctx := context.Background()

	adapter := &stubAdapter{name: "rebrickable", records: []catalog.RawRecord{
		rec("rebrickable", "X-Wing Starfighter", "75301", "Star Wars", map[string]interface{}{"year": 2021, "retail_price": 49.99}),
		rec("rebrickable", "Eiffel Tower", "10307", "Icons", map[string]interface{}{"year": 2024, "retail_price": 629.99}),
	}}
	e := newTestEngine(t, st, cfg, adapter)
	_, err := e.RunLoadCycle(ctx)
	require.NoError(t, err)

	answer, err := e.AnswerQuery(ctx, "75301", nil)
	require.NoError(t, err)
	assert.Equal(t, "keyword", string(answer.Plan.Strategy))
	require.Len(t, answer.Results, 1)
	assert.Equal(t, "X-Wing Starfighter", answer.Results[0].Item.Name)
	assert.False(t, answer.Cached)

	// A repeated query is served from cache.
	answer, err = e.AnswerQuery(ctx, "75301", nil)
	require.NoError(t, err)
	assert.True(t, answer.Cached)
	require.Len(t, answer.Results, 1)

	// Filtered query returns only matching years.
	year := 2024
	answer, err = e.AnswerQuery(ctx, "expensive sets from 2024", &catalog.Filter{YearMin: &year, YearMax: &year})
	require.NoError(t, err)
	for _, res := range answer.Results {
		require.NotNil(t, res.Item.Year)
		assert.Equal(t, 2024, *res.Item.Year)
	}

	// Zero matches is an empty answer, not an error.
	answer, err = e.AnswerQuery(ctx, "duplo unicorn rainbow", &catalog.Filter{Theme: "Duplo"})
	require.NoError(t, err)
	assert.Empty(t, answer.Results)
}

func TestAnswerQueryWithStaleIndexDegradesGracefully(t *testing.T) {
	cfg := testConfig(t)
	st := testStore(t)
	ctx := context.Background()

	adapter := &stubAdapter{name: "rebrickable", records: []catalog.RawRecord{
		rec("rebrickable", "X-Wing Starfighter", "75301", "Star Wars", nil),
		rec("rebrickable", "Medieval Castle", "31120", "Creator", nil),
	}}
	e := newTestEngine(t, st, cfg, adapter)
	_, err := e.RunLoadCycle(ctx)
	require.NoError(t, err)

	// Commit a newer snapshot behind the engine's back; the in-memory
	// index still belongs to the previous generation, as it briefly does
	// for a query racing a load cycle's commit.
	castle := &catalog.LegoItem{
		Name:                "Medieval Castle",
		SetNumber:           "31120",
		Theme:               "Creator",
		SourceName:          "rebrickable",
		ContributingSources: []string{"rebrickable"},
	}
	castle.IdentityKey = catalog.IdentityKey(castle.Name, castle.SetNumber, castle.Theme)
	castle.Refresh()
	gen, err := st.ReplaceSnapshot(ctx, []*catalog.LegoItem{castle})
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	// A hit whose key vanished in the new generation drops out silently.
	answer, err := e.AnswerQuery(ctx, "75301", nil)
	require.NoError(t, err)
	assert.Empty(t, answer.Results)

	// Surviving keys still resolve.
	answer, err = e.AnswerQuery(ctx, "31120", nil)
	require.NoError(t, err)
	require.Len(t, answer.Results, 1)
	assert.Equal(t, "Medieval Castle", answer.Results[0].Item.Name)
}

func TestAnswerQueryBeforeFirstLoad(t *testing.T) {
	cfg := testConfig(t)
	st := testStore(t)

	e := newTestEngine(t, st, cfg)
	answer, err := e.AnswerQuery(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Empty(t, answer.Results)
}

func TestEnsureIndexLoadsArtifact(t *testing.T) {
	cfg := testConfig(t)
	st := testStore(t)
	ctx := context.Background()

	adapter := &stubAdapter{name: "rebrickable", records: []catalog.RawRecord{
		rec("rebrickable", "Medieval Castle", "31120", "Creator", nil),
	}}
	e := newTestEngine(t, st, cfg, adapter)
	_, err := e.RunLoadCycle(ctx)
	require.NoError(t, err)

	// A fresh engine over the same store and artifact dir picks up the
	// index without a load cycle.
	restarted := newTestEngine(t, st, cfg, adapter)
	require.NoError(t, restarted.EnsureIndex(ctx))

	answer, err := restarted.AnswerQuery(ctx, "31120", nil)
	require.NoError(t, err)
	require.Len(t, answer.Results, 1)
	assert.Equal(t, "Medieval Castle", answer.Results[0].Item.Name)

	stats, err := restarted.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IndexItems)
	assert.Equal(t, 1, stats.Store.ItemCount)
}
