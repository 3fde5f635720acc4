package vectorstore

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/apperr"
	"docqa/internal/chunk"
	"docqa/internal/extract"
)

// hashEmbedder maps token bags to vectors; identical texts get
// identical vectors, so an exact-text query has maximal similarity.
type hashEmbedder struct{}

func (hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 16)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%16]++
	}
	vec[0]++ // never the zero vector
	return vec, nil
}

// constEmbedder gives every text the same vector, forcing similarity
// ties.
type constEmbedder struct{}

func (constEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 1, 1, 1}, nil
}

func testChunks(versionID int64, texts ...string) []chunk.Chunk {
	chunks := make([]chunk.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, chunk.Chunk{
			BlockID: extract.BlockID(versionID, extract.Paragraph, i),
			Part:    0,
			Text:    text,
			Metadata: chunk.Metadata{
				VersionID: versionID,
				DocBaseID: 1,
				ProjectID: "proj",
				BlockType: extract.Paragraph,
				Sequence:  i,
			},
		})
	}
	return chunks
}

func TestIndexAndQuery_ExactTextIsTopHit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(hashEmbedder{})

	require.NoError(t, s.Index(ctx, 1, testChunks(1,
		"the quick brown fox jumps over the lazy dog",
		"grilled cheese sandwiches are best served warm",
		"quarterly revenue grew by twelve percent",
	)))

	results, err := s.Query(ctx, 1, "grilled cheese sandwiches are best served warm", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "grilled cheese sandwiches are best served warm", top.Text)
	assert.Equal(t, "doc_1_paragraph_1", top.BlockID)
	assert.InDelta(t, 1.0, float64(top.Similarity), 1e-4)

	for _, r := range results[1:] {
		assert.LessOrEqual(t, r.Similarity, top.Similarity)
	}
}

func TestQuery_UnknownVersionIsNotFound(t *testing.T) {
	s := NewMemoryStore(hashEmbedder{})

	_, err := s.Query(context.Background(), 99, "anything", 5)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestIndex_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(hashEmbedder{})
	chunks := testChunks(2, "alpha beta", "gamma delta", "epsilon zeta")

	require.NoError(t, s.Index(ctx, 2, chunks))
	require.NoError(t, s.Index(ctx, 2, chunks))

	results, err := s.Query(ctx, 2, "alpha beta", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3, "re-indexing identical chunks must not grow the collection")
}

func TestIndex_ReplacesPreviousContent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(hashEmbedder{})

	require.NoError(t, s.Index(ctx, 3, testChunks(3, "stale first draft")))
	require.NoError(t, s.Index(ctx, 3, testChunks(3, "fresh second draft", "with more detail")))

	results, err := s.Query(ctx, 3, "stale first draft", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "stale first draft", r.Text)
	}
}

func TestQuery_TiesBreakBySequence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(constEmbedder{})

	require.NoError(t, s.Index(ctx, 4, testChunks(4, "one", "two", "three")))

	results, err := s.Query(ctx, 4, "whatever", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 0, results[0].Sequence)
	assert.Equal(t, 1, results[1].Sequence)
	assert.Equal(t, 2, results[2].Sequence)
}

func TestQuery_TopKCappedAtCollectionSize(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(hashEmbedder{})

	require.NoError(t, s.Index(ctx, 5, testChunks(5, "only entry")))

	results, err := s.Query(ctx, 5, "only entry", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(hashEmbedder{})

	require.NoError(t, s.Index(ctx, 6, testChunks(6, "to be purged")))
	require.True(t, s.Has(6))

	require.NoError(t, s.Purge(6))
	assert.False(t, s.Has(6))

	_, err := s.Query(ctx, 6, "to be purged", 5)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestIndex_PersistsMetadata(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(hashEmbedder{})

	require.NoError(t, s.Index(ctx, 7, testChunks(7, "metadata check")))

	results, err := s.Query(ctx, 7, "metadata check", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "paragraph", r.BlockType)
	assert.Equal(t, "7", r.Metadata["version_id"])
	assert.Equal(t, "proj", r.Metadata["project_id"])
	assert.Equal(t, "doc_7_paragraph_0", r.BlockID)
}
