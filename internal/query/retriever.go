package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/bricklore/brickengine/internal/catalog"
	"github.com/bricklore/brickengine/internal/config"
	"github.com/bricklore/brickengine/internal/embedding"
	"github.com/bricklore/brickengine/internal/observability"
	"github.com/bricklore/brickengine/internal/store"
	"github.com/bricklore/brickengine/internal/vector"
)

// Result pairs a catalog item with its relevance score.
type Result struct {
	Item  *catalog.LegoItem `json:"item"`
	Score float64           `json:"score"`
}

// ItemStore is the slice of the record store the retriever needs.
type ItemStore interface {
	GetItems(ctx context.Context, identityKeys []string) ([]*catalog.LegoItem, error)
}

var _ ItemStore = (*store.Store)(nil)

// Retriever executes retrieval plans against the active index and resolves
// hits to full items.
type Retriever struct {
	logger         *observability.Logger
	store          ItemStore
	embedder       embedding.Embedder
	semanticWeight float64
	keywordWeight  float64
	minQuality     float64
}

// NewRetriever creates a retriever with the configured fusion weights.
func NewRetriever(logger *observability.Logger, items ItemStore, embedder embedding.Embedder, cfg config.RetrievalConfig) *Retriever {
	sw := cfg.SemanticWeight
	kw := cfg.KeywordWeight
	if sw <= 0 && kw <= 0 {
		sw, kw = 0.7, 0.3
	}
	return &Retriever{
		logger:         logger.WithComponent("retriever"),
		store:          items,
		embedder:       embedder,
		semanticWeight: sw,
		keywordWeight:  kw,
		minQuality:     cfg.MinQuality,
	}
}

// Retrieve executes the plan and returns ranked results. Filters intersect
// the candidate set; they never add candidates. An empty result is a valid
// outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, idx *vector.Index, queryText string, plan Plan, filter *catalog.Filter) ([]Result, error) {
	if idx == nil || idx.Len() == 0 {
		return nil, nil
	}

	var (
		scores map[string]float64
		err    error
	)

	switch plan.Strategy {
	case StrategySemantic:
		scores, err = r.semanticScores(ctx, idx, queryText, plan)
	case StrategyKeyword:
		scores = r.keywordScores(idx, queryText, plan)
	case StrategyHybrid:
		scores, err = r.hybridScores(ctx, idx, queryText, plan)
	default:
		return nil, fmt.Errorf("unknown strategy %q", plan.Strategy)
	}
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(scores))
	for key := range scores {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	items, err := r.store.GetItems(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("resolve %d hits: %w", len(keys), err)
	}

	results := make([]Result, 0, len(items))
	for _, it := range items {
		if !filter.Matches(it) {
			continue
		}
		if r.minQuality > 0 && it.QualityScore < r.minQuality {
			continue
		}
		results = append(results, Result{Item: it, Score: scores[it.IdentityKey]})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Item.QualityScore != results[j].Item.QualityScore {
			return results[i].Item.QualityScore > results[j].Item.QualityScore
		}
		return results[i].Item.IdentityKey < results[j].Item.IdentityKey
	})

	if len(results) > plan.K {
		results = results[:plan.K]
	}

	r.logger.Debug().
		Str("strategy", string(plan.Strategy)).
		Int("candidates", len(scores)).
		Int("results", len(results)).
		Msg("Retrieval complete")
	return results, nil
}

// semanticScores embeds the query and keeps index hits at or above the
// plan's similarity threshold.
func (r *Retriever) semanticScores(ctx context.Context, idx *vector.Index, queryText string, plan Plan) (map[string]float64, error) {
	queryVec, err := r.embedder.EmbedSingle(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := idx.SearchVector(queryVec, plan.K)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		if hit.Score < plan.SimilarityThreshold {
			continue
		}
		scores[hit.IdentityKey] = hit.Score
	}
	return scores, nil
}

// keywordScores runs token matching over the index entries. The similarity
// threshold applies to semantic scores only: a keyword score is the matched
// fraction of query tokens, so filler words around an exact set number would
// sink it below any useful threshold.
func (r *Retriever) keywordScores(idx *vector.Index, queryText string, plan Plan) map[string]float64 {
	hits := idx.SearchKeyword(queryText, plan.K)
	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		scores[hit.IdentityKey] = hit.Score
	}
	return scores
}

// hybridScores unions semantic and keyword candidates. Each identity key
// gets exactly one fused score; appearing in both sets raises the score,
// it never double counts.
func (r *Retriever) hybridScores(ctx context.Context, idx *vector.Index, queryText string, plan Plan) (map[string]float64, error) {
	queryVec, err := r.embedder.EmbedSingle(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	semantic, err := idx.SearchVector(queryVec, plan.K)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	keyword := idx.SearchKeyword(queryText, plan.K)

	semScores := make(map[string]float64, len(semantic))
	for _, hit := range semantic {
		if hit.Score < plan.SimilarityThreshold {
			continue
		}
		semScores[hit.IdentityKey] = hit.Score
	}

	fused := make(map[string]float64, len(semScores)+len(keyword))
	for key, score := range semScores {
		fused[key] = r.semanticWeight * score
	}
	for _, hit := range keyword {
		fused[hit.IdentityKey] += r.keywordWeight * hit.Score
	}
	return fused, nil
}
