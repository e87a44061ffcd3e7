package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNormalize(t *testing.T, rec RawRecord) *LegoItem {
	t.Helper()
	item, err := Normalize(rec)
	require.NoError(t, err)
	return item
}

func TestDeduplicate_MergesAcrossSources(t *testing.T) {
	// Source A knows the set but not its price; source B has the price and a
	// richer record overall.
	a := mustNormalize(t, RawRecord{
		Source: "brickowl",
		Fields: map[string]interface{}{
			"name":  "X-Wing Fighter",
			"theme": "Star Wars",
		},
	})
	b := mustNormalize(t, RawRecord{
		Source: "brickset",
		Fields: map[string]interface{}{
			"name":   "X-Wing Fighter",
			"theme":  "Star Wars",
			"year":   float64(2021),
			"price":  49.99,
			"pieces": float64(474),
		},
	})
	require.Equal(t, a.IdentityKey, b.IdentityKey)
	require.Less(t, a.QualityScore, b.QualityScore)

	d := NewDeduplicator([]string{"rebrickable", "brickset", "brickowl"})
	merged := d.Deduplicate([]*LegoItem{a, b})
	require.Len(t, merged, 1)

	got := merged[0]
	require.NotNil(t, got.Price)
	assert.Equal(t, 49.99, *got.Price)
	assert.Equal(t, []string{"brickowl", "brickset"}, got.ContributingSources)
	assert.GreaterOrEqual(t, got.QualityScore, b.QualityScore)
	assert.Equal(t, "brickset", got.SourceName)
}

func TestDeduplicate_QualityMonotonic(t *testing.T) {
	a := mustNormalize(t, RawRecord{
		Source: "rebrickable",
		Fields: map[string]interface{}{
			"name":    "Modular Fire Station",
			"set_num": "60320-1",
			"year":    float64(2022),
		},
	})
	b := mustNormalize(t, RawRecord{
		Source: "brickowl",
		Fields: map[string]interface{}{
			"name":    "Modular Fire Station",
			"number":  "60320 1",
			"theme":   "City",
			"price":   64.99,
			"details": "Three-storey station with garage",
		},
	})
	require.Equal(t, a.IdentityKey, b.IdentityKey)

	d := NewDeduplicator(nil)
	merged := d.Deduplicate([]*LegoItem{a, b})
	require.Len(t, merged, 1)

	maxInput := a.QualityScore
	if b.QualityScore > maxInput {
		maxInput = b.QualityScore
	}
	assert.GreaterOrEqual(t, merged[0].QualityScore, maxInput)

	// The merged record covers the union of fields.
	assert.NotNil(t, merged[0].Year)
	assert.NotNil(t, merged[0].Price)
	assert.Equal(t, "City", merged[0].Theme)
	assert.NotEmpty(t, merged[0].Description)
}

func TestDeduplicate_Idempotent(t *testing.T) {
	items := []*LegoItem{
		mustNormalize(t, RawRecord{Source: "rebrickable", Fields: map[string]interface{}{
			"name": "TIE Fighter", "set_num": "75300-1", "year": float64(2021),
		}}),
		mustNormalize(t, RawRecord{Source: "brickset", Fields: map[string]interface{}{
			"name": "TIE Fighter", "number": "75300 1", "price": 39.99,
		}}),
		mustNormalize(t, RawRecord{Source: "brickset", Fields: map[string]interface{}{
			"name": "Police Station", "theme_name": "City",
		}}),
	}

	d := NewDeduplicator([]string{"rebrickable", "brickset"})
	once := d.Deduplicate(items)
	twice := d.Deduplicate(once)

	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].IdentityKey, twice[i].IdentityKey)
		assert.Equal(t, once[i].ContributingSources, twice[i].ContributingSources)
		assert.Equal(t, once[i].QualityScore, twice[i].QualityScore)
		assert.Equal(t, once[i].EmbeddingText, twice[i].EmbeddingText)
	}
}

func TestDeduplicate_SourcePriorityBreaksTies(t *testing.T) {
	// Identical field coverage, conflicting prices. The configured priority
	// order decides, not map iteration order.
	build := func(source string, price float64) *LegoItem {
		return mustNormalize(t, RawRecord{Source: source, Fields: map[string]interface{}{
			"name":  "Grand Carousel",
			"theme": "Creator Expert",
			"price": price,
		}})
	}

	a := build("brickowl", 219.99)
	b := build("brickset", 199.99)
	require.Equal(t, a.QualityScore, b.QualityScore)

	d := NewDeduplicator([]string{"brickset", "brickowl"})
	merged := d.Deduplicate([]*LegoItem{a, b})
	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].Price)
	assert.Equal(t, 199.99, *merged[0].Price)
	assert.Equal(t, "brickset", merged[0].SourceName)

	// Reversing the priority reverses the winner.
	d = NewDeduplicator([]string{"brickowl", "brickset"})
	merged = d.Deduplicate([]*LegoItem{a, b})
	require.Len(t, merged, 1)
	assert.Equal(t, 219.99, *merged[0].Price)
}

func TestDeduplicate_NeverInventsData(t *testing.T) {
	a := mustNormalize(t, RawRecord{Source: "rebrickable", Fields: map[string]interface{}{
		"name": "Unknown Treasure", "theme": "Pirates",
	}})
	b := mustNormalize(t, RawRecord{Source: "brickset", Fields: map[string]interface{}{
		"name": "Unknown Treasure", "theme": "Pirates",
	}})

	d := NewDeduplicator(nil)
	merged := d.Deduplicate([]*LegoItem{a, b})
	require.Len(t, merged, 1)

	assert.Nil(t, merged[0].Year)
	assert.Nil(t, merged[0].Price)
	assert.Nil(t, merged[0].PieceCount)
}
