package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bricklore/brickengine/internal/catalog"
	"github.com/bricklore/brickengine/internal/config"
	"github.com/bricklore/brickengine/internal/embedding"
	"github.com/bricklore/brickengine/internal/observability"
	"github.com/bricklore/brickengine/internal/vector"
)

type fakeStore struct {
	items map[string]*catalog.LegoItem
}

func (f *fakeStore) GetItems(ctx context.Context, identityKeys []string) ([]*catalog.LegoItem, error) {
	var out []*catalog.LegoItem
	for _, key := range identityKeys {
		if it, ok := f.items[key]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func corpus() []*catalog.LegoItem {
	items := []*catalog.LegoItem{
		{Name: "X-Wing Starfighter", SetNumber: "75301", Theme: "Star Wars", Year: intp(2021), Price: floatp(49.99), Description: "Luke Skywalker's starfighter with R2-D2."},
		{Name: "Millennium Falcon", SetNumber: "75192", Theme: "Star Wars", Year: intp(2017), Price: floatp(849.99), Description: "The Corellian freighter in display scale."},
		{Name: "Medieval Castle", SetNumber: "31120", Theme: "Creator", Year: intp(2021), Price: floatp(99.99), Description: "Castle with knights, drawbridge and dragon."},
		{Name: "Eiffel Tower", SetNumber: "10307", Theme: "Icons", Year: intp(2024), Price: floatp(629.99), Description: "The Paris landmark at meter-and-a-half scale."},
	}
	for _, it := range items {
		it.IdentityKey = catalog.IdentityKey(it.Name, it.SetNumber, it.Theme)
		it.SourceName = "rebrickable"
		it.ContributingSources = []string{"rebrickable"}
		it.Refresh()
	}
	return items
}

func testRetrieval(t *testing.T) (*Retriever, *vector.Index) {
	t.Helper()

	items := corpus()
	byKey := make(map[string]*catalog.LegoItem, len(items))
	for _, it := range items {
		byKey[it.IdentityKey] = it
	}

	embedder := embedding.NewLocalEmbedder(256)
	idx, err := vector.Build(context.Background(), embedder, items, 1)
	require.NoError(t, err)

	r := NewRetriever(observability.NopLogger(), &fakeStore{items: byKey},
		embedder, config.RetrievalConfig{SemanticWeight: 0.7, KeywordWeight: 0.3})
	return r, idx
}

func key(name, setNumber, theme string) string {
	return catalog.IdentityKey(name, setNumber, theme)
}

func TestRetrieveKeywordSetNumber(t *testing.T) {
	r, idx := testRetrieval(t)

	plan := Plan{Strategy: StrategyKeyword, K: 5, SimilarityThreshold: 0.90}
	results, err := r.Retrieve(context.Background(), idx, "75301", plan, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, key("X-Wing Starfighter", "75301", "Star Wars"), results[0].Item.IdentityKey)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestRetrieveKeywordSetNumberWithFillerWords(t *testing.T) {
	r, idx := testRetrieval(t)

	// Filler words lower the matched-token fraction; the plan's similarity
	// threshold must not drop the exactly matching set on that account.
	queryText := "show me set 75301"
	plan := testPlanner().Plan(queryText)
	require.Equal(t, StrategyKeyword, plan.Strategy)

	results, err := r.Retrieve(context.Background(), idx, queryText, plan, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, key("X-Wing Starfighter", "75301", "Star Wars"), results[0].Item.IdentityKey)
}

func TestRetrieveSemanticRanksRelevantFirst(t *testing.T) {
	r, idx := testRetrieval(t)

	plan := Plan{Strategy: StrategySemantic, K: 4, SimilarityThreshold: 0}
	results, err := r.Retrieve(context.Background(), idx, "castle with knights and a dragon", plan, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, key("Medieval Castle", "31120", "Creator"), results[0].Item.IdentityKey)
}

func TestRetrieveThresholdDropsWeakMatches(t *testing.T) {
	r, idx := testRetrieval(t)

	plan := Plan{Strategy: StrategySemantic, K: 4, SimilarityThreshold: 0.99}
	results, err := r.Retrieve(context.Background(), idx, "unrelated gibberish zzz", plan, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveHybridFusesWithoutDoubleCounting(t *testing.T) {
	r, idx := testRetrieval(t)

	plan := Plan{Strategy: StrategyHybrid, K: 4, SimilarityThreshold: 0}
	results, err := r.Retrieve(context.Background(), idx, "millennium falcon star wars", plan, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	seen := make(map[string]bool)
	for _, res := range results {
		assert.False(t, seen[res.Item.IdentityKey], "duplicate identity key in results")
		seen[res.Item.IdentityKey] = true
		// Fused scores never exceed the sum of the fusion weights.
		assert.LessOrEqual(t, res.Score, 1.0+1e-9)
	}
	assert.Equal(t, key("Millennium Falcon", "75192", "Star Wars"), results[0].Item.IdentityKey)
}

func TestRetrieveAppliesPostFilter(t *testing.T) {
	r, idx := testRetrieval(t)

	filter := &catalog.Filter{YearMin: intp(2024), YearMax: intp(2024)}
	plan := Plan{Strategy: StrategyHybrid, K: 10, SimilarityThreshold: 0}
	results, err := r.Retrieve(context.Background(), idx, "expensive sets from 2024", plan, filter)
	require.NoError(t, err)

	for _, res := range results {
		require.NotNil(t, res.Item.Year)
		assert.Equal(t, 2024, *res.Item.Year)
	}
}

func TestRetrieveEmptyIsNotAnError(t *testing.T) {
	r, idx := testRetrieval(t)

	// A filter nothing satisfies yields an empty result, not an error.
	filter := &catalog.Filter{PriceMin: floatp(100000)}
	plan := Plan{Strategy: StrategyHybrid, K: 10, SimilarityThreshold: 0}
	results, err := r.Retrieve(context.Background(), idx, "star wars", plan, filter)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveNilIndex(t *testing.T) {
	r, _ := testRetrieval(t)

	results, err := r.Retrieve(context.Background(), nil, "anything", Plan{Strategy: StrategyHybrid, K: 5}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
