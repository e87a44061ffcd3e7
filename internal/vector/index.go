package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bricklore/brickengine/internal/catalog"
	"github.com/bricklore/brickengine/internal/embedding"
)

// Manifest describes an index artifact and how to interpret it.
type Manifest struct {
	IndexVersion int    `json:"index_version"`
	CreatedAt    string `json:"created_at"`
	Generation   int64  `json:"generation"`
	ModelID      string `json:"model_id"`
	Dim          int    `json:"dim"`
	Normalize    bool   `json:"normalize"`
	VectorFile   string `json:"vector_file"`
	ItemsFile    string `json:"items_file"`
}

// Entry is one indexed item row in items.jsonl. It carries just enough of
// the item to score and rank without a store round trip.
type Entry struct {
	IdentityKey   string  `json:"id"`
	Name          string  `json:"name"`
	SetNumber     string  `json:"set_number,omitempty"`
	Theme         string  `json:"theme,omitempty"`
	QualityScore  float64 `json:"quality_score"`
	EmbeddingText string  `json:"embedding_text"`
}

// Index is a loaded semantic index. Vectors is a flat row-major matrix of
// len(Entries) x Manifest.Dim floats.
type Index struct {
	Manifest Manifest
	Entries  []Entry
	Vectors  []float32
}

// currentIndexVersion is bumped whenever the artifact layout changes.
const currentIndexVersion = 1

// Build embeds every item's embedding text and assembles an index for the
// given generation. Items are sorted by identity key first so the artifact
// is deterministic.
func Build(ctx context.Context, embedder embedding.Embedder, items []*catalog.LegoItem, generation int64) (*Index, error) {
	sorted := make([]*catalog.LegoItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].IdentityKey < sorted[j].IdentityKey
	})

	texts := make([]string, len(sorted))
	for i, it := range sorted {
		texts[i] = it.EmbeddingText
	}

	embedded, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d items: %w", len(texts), err)
	}
	if len(embedded) != len(sorted) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d items", len(embedded), len(sorted))
	}

	dim := embedder.Dimension()
	entries := make([]Entry, len(sorted))
	vectors := make([]float32, 0, len(sorted)*dim)
	for i, it := range sorted {
		if len(embedded[i]) != dim {
			return nil, fmt.Errorf("item %s: got %d-dim vector, want %d", it.IdentityKey, len(embedded[i]), dim)
		}
		entries[i] = Entry{
			IdentityKey:   it.IdentityKey,
			Name:          it.Name,
			SetNumber:     it.SetNumber,
			Theme:         it.Theme,
			QualityScore:  it.QualityScore,
			EmbeddingText: it.EmbeddingText,
		}
		vectors = append(vectors, NormalizeL2(embedded[i])...)
	}

	return &Index{
		Manifest: Manifest{
			IndexVersion: currentIndexVersion,
			Generation:   generation,
			ModelID:      embedder.Model(),
			Dim:          dim,
			Normalize:    true,
		},
		Entries: entries,
		Vectors: vectors,
	}, nil
}

// Len returns the number of indexed items.
func (idx *Index) Len() int {
	return len(idx.Entries)
}

// Hit is one scored search result.
type Hit struct {
	IdentityKey string  `json:"identityKey"`
	Score       float64 `json:"score"`
}

// SearchVector returns the k entries most similar to the query vector,
// scored by cosine similarity. Ties break on quality score, then identity
// key, so results are stable.
func (idx *Index) SearchVector(query []float32, k int) ([]Hit, error) {
	if len(query) != idx.Manifest.Dim {
		return nil, fmt.Errorf("%w: query %d, index %d", ErrVectorLengthMismatch, len(query), idx.Manifest.Dim)
	}
	if k <= 0 || idx.Len() == 0 {
		return nil, nil
	}

	q := NormalizeL2(query)
	type scored struct {
		entry int
		score float64
	}

	results := make([]scored, 0, idx.Len())
	dim := idx.Manifest.Dim
	for i := range idx.Entries {
		row := idx.Vectors[i*dim : (i+1)*dim]
		var dot float64
		for j := 0; j < dim; j++ {
			dot += float64(q[j]) * float64(row[j])
		}
		results = append(results, scored{entry: i, score: dot})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		ei, ej := idx.Entries[results[i].entry], idx.Entries[results[j].entry]
		if ei.QualityScore != ej.QualityScore {
			return ei.QualityScore > ej.QualityScore
		}
		return ei.IdentityKey < ej.IdentityKey
	})

	if k > len(results) {
		k = len(results)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{IdentityKey: idx.Entries[results[i].entry].IdentityKey, Score: results[i].score}
	}
	return hits, nil
}

// SearchKeyword returns the k entries best matching the query tokens. The
// score is the fraction of query tokens found in the entry's name, set
// number, theme or embedding text; entries matching no token are excluded.
func (idx *Index) SearchKeyword(query string, k int) []Hit {
	tokens := embedding.Tokenize(query)
	if len(tokens) == 0 || k <= 0 {
		return nil
	}

	type scored struct {
		entry int
		score float64
	}

	var results []scored
	for i, e := range idx.Entries {
		blob := strings.ToLower(strings.Join([]string{e.Name, e.SetNumber, e.Theme, e.EmbeddingText}, "\n"))
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(blob, tok) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, scored{entry: i, score: float64(matched) / float64(len(tokens))})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		ei, ej := idx.Entries[results[i].entry], idx.Entries[results[j].entry]
		if ei.QualityScore != ej.QualityScore {
			return ei.QualityScore > ej.QualityScore
		}
		return ei.IdentityKey < ej.IdentityKey
	})

	if k > len(results) {
		k = len(results)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{IdentityKey: idx.Entries[results[i].entry].IdentityKey, Score: results[i].score}
	}
	return hits
}
