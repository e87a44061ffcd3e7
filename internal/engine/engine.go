// Package engine wires sources, catalog processing, storage, indexing and
// retrieval into the Brick Engine's two top-level operations: running a
// load cycle and answering a query.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bricklore/brickengine/internal/cache"
	"github.com/bricklore/brickengine/internal/catalog"
	"github.com/bricklore/brickengine/internal/config"
	"github.com/bricklore/brickengine/internal/embedding"
	"github.com/bricklore/brickengine/internal/observability"
	"github.com/bricklore/brickengine/internal/query"
	"github.com/bricklore/brickengine/internal/source"
	"github.com/bricklore/brickengine/internal/store"
	"github.com/bricklore/brickengine/internal/vector"
)

// Engine owns the load pipeline and the query path.
type Engine struct {
	logger    *observability.Logger
	cfg       *config.Config
	store     *store.Store
	embedder  embedding.Embedder
	adapters  []source.Adapter
	dedup     *catalog.Deduplicator
	planner   *query.Planner
	retriever *query.Retriever
	cache     cache.Client

	// loadMu guards the load cycle; TryLock turns overlap into rejection.
	loadMu sync.Mutex

	idxMu sync.RWMutex
	idx   *vector.Index
}

// New assembles an engine from its parts.
func New(cfg *config.Config, logger *observability.Logger, st *store.Store,
	embedder embedding.Embedder, cacheClient cache.Client, adapters []source.Adapter) *Engine {
	return &Engine{
		logger:    logger.WithComponent("engine"),
		cfg:       cfg,
		store:     st,
		embedder:  embedder,
		adapters:  adapters,
		dedup:     catalog.NewDeduplicator(cfg.Sources.Priority),
		planner:   query.NewPlanner(cfg.Retrieval),
		retriever: query.NewRetriever(logger, st, embedder, cfg.Retrieval),
		cache:     cacheClient,
	}
}

// LoadReport summarizes one load cycle.
type LoadReport struct {
	JobID          uuid.UUID      `json:"jobId"`
	Generation     int64          `json:"generation"`
	StartedAt      time.Time      `json:"startedAt"`
	FinishedAt     time.Time      `json:"finishedAt"`
	RecordsIn      int            `json:"recordsIn"`
	RecordsDeduped int            `json:"recordsDeduped"`
	RecordsDropped int            `json:"recordsDropped"`
	PerSource      map[string]int `json:"perSource"`
	SourceErrors   []string       `json:"sourceErrors"`
}

// RunLoadCycle fetches all sources, normalizes, dedupes, persists a new
// snapshot and swaps in a freshly built index. Source and record failures
// are tolerated and reported; store and index failures abort the cycle
// with the previous snapshot still active. A second call while one cycle
// runs returns ErrLoadInProgress.
func (e *Engine) RunLoadCycle(ctx context.Context) (*LoadReport, error) {
	if !e.loadMu.TryLock() {
		return nil, ErrLoadInProgress
	}
	defer e.loadMu.Unlock()

	report := &LoadReport{
		JobID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		PerSource: make(map[string]int),
	}
	logger := e.logger.WithComponent("load")
	logger.Info().
		Str("job_id", report.JobID.String()).
		Int("sources", len(e.adapters)).
		Msg("Load cycle started")

	fetched := source.FetchAll(ctx, logger, e.adapters, e.cfg.Sources.FetchTimeout)
	report.RecordsIn = len(fetched.Records)
	report.PerSource = fetched.PerSource
	for _, fe := range fetched.Errors {
		report.SourceErrors = append(report.SourceErrors, fe.Error())
	}

	items := make([]*catalog.LegoItem, 0, len(fetched.Records))
	for _, rec := range fetched.Records {
		it, err := catalog.Normalize(rec)
		if err != nil {
			var malformed *catalog.MalformedRecordError
			if errors.As(err, &malformed) {
				report.RecordsDropped++
				logger.Debug().Str("source", malformed.Source).Str("reason", malformed.Reason).Msg("Record dropped")
				continue
			}
			return nil, err
		}
		items = append(items, it)
	}

	deduped := e.dedup.Deduplicate(items)
	report.RecordsDeduped = len(deduped)

	gen, err := e.prospectiveGeneration(ctx)
	if err != nil {
		return nil, err
	}

	// The index is a pure function of the deduped snapshot, so build it
	// before touching the store: an embedding failure leaves everything
	// as it was.
	idx, err := vector.Build(ctx, e.embedder, deduped, gen)
	if err != nil {
		e.recordFailure(ctx, report, gen)
		return nil, fmt.Errorf("%w: %v", ErrIndexBuild, err)
	}
	if err := vector.Write(vector.GenerationDir(e.cfg.Index.Dir, gen), idx); err != nil {
		e.recordFailure(ctx, report, gen)
		return nil, fmt.Errorf("%w: %v", ErrIndexBuild, err)
	}

	committed, err := e.store.ReplaceSnapshot(ctx, deduped)
	if err != nil {
		e.recordFailure(ctx, report, gen)
		return nil, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if committed != gen {
		// Another writer slipped in between the generation peek and the
		// commit; the committed snapshot wins and the index is rebuilt
		// from it on the next EnsureIndex.
		return nil, fmt.Errorf("%w: generation moved from %d to %d", ErrStoreWrite, gen, committed)
	}
	report.Generation = gen

	// Swap the live index as close to the snapshot commit as possible. A
	// query racing the commit may still resolve old-index hits against the
	// new generation; keys gone from it drop out of the result, which is a
	// valid (if briefly thinner) answer.
	e.idxMu.Lock()
	e.idx = idx
	e.idxMu.Unlock()

	if err := vector.Activate(e.cfg.Index.Dir, gen); err != nil {
		logger.Warn().Err(err).Msg("Index pointer update failed; will rebuild on restart")
	}
	if err := vector.PruneGenerations(e.cfg.Index.Dir, gen); err != nil {
		logger.Warn().Err(err).Msg("Index prune failed")
	}

	report.FinishedAt = time.Now().UTC()
	if err := e.store.RecordLoad(ctx, &store.LoadRecord{
		JobID:          report.JobID,
		Generation:     gen,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
		RecordsIn:      report.RecordsIn,
		RecordsDeduped: report.RecordsDeduped,
		RecordsDropped: report.RecordsDropped,
		SourceErrors:   report.SourceErrors,
		Status:         store.LoadStatusSucceeded,
	}); err != nil {
		logger.Warn().Err(err).Msg("Load history write failed")
	}

	logger.Info().
		Str("job_id", report.JobID.String()).
		Int64("generation", gen).
		Int("records_in", report.RecordsIn).
		Int("records_deduped", report.RecordsDeduped).
		Int("records_dropped", report.RecordsDropped).
		Int("source_errors", len(report.SourceErrors)).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Load cycle complete")
	return report, nil
}

func (e *Engine) prospectiveGeneration(ctx context.Context) (int64, error) {
	gen, err := e.store.ActiveGeneration(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return gen + 1, nil
}

func (e *Engine) recordFailure(ctx context.Context, report *LoadReport, gen int64) {
	report.FinishedAt = time.Now().UTC()
	err := e.store.RecordLoad(ctx, &store.LoadRecord{
		JobID:          report.JobID,
		Generation:     gen,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
		RecordsIn:      report.RecordsIn,
		RecordsDeduped: report.RecordsDeduped,
		RecordsDropped: report.RecordsDropped,
		SourceErrors:   report.SourceErrors,
		Status:         store.LoadStatusFailed,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Load history write failed")
	}
}

// EnsureIndex makes the in-memory index match the active store snapshot.
// It prefers the on-disk artifact and rebuilds from the store when the
// artifact is missing or belongs to another generation. No snapshot at
// all is fine: queries run against an empty engine until the first load.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	gen, err := e.store.ActiveGeneration(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}

	if idx, err := vector.LoadCurrent(e.cfg.Index.Dir); err == nil &&
		idx.Manifest.Generation == gen && idx.Manifest.ModelID == e.embedder.Model() {
		e.idxMu.Lock()
		e.idx = idx
		e.idxMu.Unlock()
		e.logger.Info().Int64("generation", gen).Int("items", idx.Len()).Msg("Index loaded from artifact")
		return nil
	}

	items, err := e.store.AllItems(ctx)
	if err != nil {
		return fmt.Errorf("scan snapshot for rebuild: %w", err)
	}
	idx, err := vector.Build(ctx, e.embedder, items, gen)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexBuild, err)
	}
	if err := vector.WriteGeneration(e.cfg.Index.Dir, idx); err != nil {
		e.logger.Warn().Err(err).Msg("Index artifact write failed; serving from memory")
	}

	e.idxMu.Lock()
	e.idx = idx
	e.idxMu.Unlock()
	e.logger.Info().Int64("generation", gen).Int("items", idx.Len()).Msg("Index rebuilt from store")
	return nil
}

// Answer is the response to one query.
type Answer struct {
	Query   string         `json:"query"`
	Plan    query.Plan     `json:"plan"`
	Results []query.Result `json:"results"`
	Cached  bool           `json:"cached"`
}

// AnswerQuery plans and executes a query against the active snapshot.
func (e *Engine) AnswerQuery(ctx context.Context, queryText string, filter *catalog.Filter) (*Answer, error) {
	plan := e.planner.Plan(queryText)
	answer := &Answer{Query: queryText, Plan: plan}

	e.idxMu.RLock()
	idx := e.idx
	e.idxMu.RUnlock()
	if idx == nil {
		answer.Results = []query.Result{}
		return answer, nil
	}

	cacheKey := cache.QueryKey(idx.Manifest.Generation, queryText, filter)
	if e.cfg.Retrieval.CacheResults && e.cache != nil {
		if data, err := e.cache.Get(ctx, cacheKey); err == nil {
			var results []query.Result
			if err := json.Unmarshal(data, &results); err == nil {
				answer.Results = results
				answer.Cached = true
				return answer, nil
			}
		}
	}

	results, err := e.retriever.Retrieve(ctx, idx, queryText, plan, filter)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []query.Result{}
	}
	answer.Results = results

	if e.cfg.Retrieval.CacheResults && e.cache != nil {
		if data, err := json.Marshal(results); err == nil {
			ttl := e.cfg.Cache.TTL
			if ttl <= 0 {
				ttl = 5 * time.Minute
			}
			if err := e.cache.Set(ctx, cacheKey, data, ttl); err != nil {
				e.logger.Debug().Err(err).Msg("Query cache write failed")
			}
		}
	}
	return answer, nil
}

// GetItem returns one item from the active snapshot.
func (e *Engine) GetItem(ctx context.Context, identityKey string) (*catalog.LegoItem, error) {
	return e.store.GetItem(ctx, identityKey)
}

// ListItems lists items from the active snapshot.
func (e *Engine) ListItems(ctx context.Context, filter *catalog.Filter, limit, offset int) ([]*catalog.LegoItem, error) {
	return e.store.ListItems(ctx, filter, limit, offset)
}

// Stats reports on the active snapshot, index and load history.
type Stats struct {
	Store      *store.Stats `json:"store"`
	IndexItems int          `json:"indexItems"`
	IndexModel string       `json:"indexModel,omitempty"`
}

// Stats summarizes the engine's current state.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	storeStats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Store: storeStats}
	e.idxMu.RLock()
	if e.idx != nil {
		stats.IndexItems = e.idx.Len()
		stats.IndexModel = e.idx.Manifest.ModelID
	}
	e.idxMu.RUnlock()
	return stats, nil
}

// LoadHistory returns recent load cycles, newest first.
func (e *Engine) LoadHistory(ctx context.Context, limit int) ([]*store.LoadRecord, error) {
	return e.store.LoadHistory(ctx, limit)
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	var errs []error
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
