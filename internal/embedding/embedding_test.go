package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(64)

	a, err := e.EmbedSingle(context.Background(), "LEGO Set: Medieval Castle | Theme: Creator")
	require.NoError(t, err)
	b, err := e.EmbedSingle(context.Background(), "LEGO Set: Medieval Castle | Theme: Creator")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestLocalEmbedderUnitNorm(t *testing.T) {
	e := NewLocalEmbedder(128)

	vec, err := e.EmbedSingle(context.Background(), "space station with minifigures")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestLocalEmbedderSimilarTextsCloser(t *testing.T) {
	e := NewLocalEmbedder(256)
	ctx := context.Background()

	castle1, err := e.EmbedSingle(ctx, "medieval castle with knights and dragon")
	require.NoError(t, err)
	castle2, err := e.EmbedSingle(ctx, "large medieval castle with knights")
	require.NoError(t, err)
	spaceship, err := e.EmbedSingle(ctx, "galaxy explorer spaceship rocket")
	require.NoError(t, err)

	assert.Greater(t, dot(castle1, castle2), dot(castle1, spaceship))
}

func TestLocalEmbedderBatchMatchesSingle(t *testing.T) {
	e := NewLocalEmbedder(64)
	ctx := context.Background()

	batch, err := e.Embed(ctx, []string{"pirate ship", "fire station"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	single, err := e.EmbedSingle(ctx, "fire station")
	require.NoError(t, err)
	assert.Equal(t, single, batch[1])
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("LEGO Set: X-Wing (75301) | Year: 2021")
	assert.Equal(t, []string{"lego", "set", "x", "wing", "75301", "year", "2021"}, tokens)
}

func TestClientEmbedReordersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		// Return data in reverse order to exercise index reassembly.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "test-key", Dimension: 2})
	require.NoError(t, err)

	embeddings, err := client.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{1, 0}, embeddings[0])
	assert.Equal(t, []float32{0, 1}, embeddings[1])
}

func TestClientEmbedRejectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0, 0}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "test-key", Dimension: 2})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), []string{"anything"})
	assert.ErrorContains(t, err, "dimension")
	assert.Equal(t, 2, client.Dimension())
}

func TestClientEmbedAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "invalid api key", "type": "auth_error"},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "bad-key"})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), []string{"anything"})
	assert.ErrorContains(t, err, "invalid api key")
}

func TestClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	if math.IsNaN(sum) {
		return 0
	}
	return sum
}
