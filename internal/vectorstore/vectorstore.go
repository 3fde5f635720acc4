package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"docqa/internal/apperr"
	"docqa/internal/chunk"
	"docqa/internal/embedding"
)

const compress = false

// Store keeps one similarity-searchable collection per document
// version. Collections are only mutated by Index and Purge; queries
// are read-only and safe to run concurrently.
type Store struct {
	db       *chromem.DB
	embedder embedding.Embedder
}

// Result is one retrieved chunk with its provenance. Transient, never
// persisted.
type Result struct {
	ID         string
	BlockID    string
	Text       string
	BlockType  string
	Sequence   int
	Metadata   map[string]string
	Similarity float32
}

// NewStore opens (or creates) the persistent vector database.
func NewStore(path string, embedder embedding.Embedder) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector database: %w", err)
	}
	return &Store{db: db, embedder: embedder}, nil
}

// NewMemoryStore keeps everything in memory. Used by tests and dry
// runs.
func NewMemoryStore(embedder embedding.Embedder) *Store {
	return &Store{db: chromem.NewDB(), embedder: embedder}
}

func collectionName(versionID int64) string {
	return fmt.Sprintf("version_%d", versionID)
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Index embeds the chunks and replaces the version's collection with
// them. Replacing rather than appending keeps stale vectors from a
// previous upload of the same version out of later queries. Document
// ids are deterministic, so indexing identical chunks twice leaves the
// queryable content set unchanged.
func (s *Store) Index(ctx context.Context, versionID int64, chunks []chunk.Chunk) error {
	name := collectionName(versionID)
	if err := s.db.DeleteCollection(name); err != nil {
		return apperr.Wrap(apperr.IndexingFailed, err, "cannot reset collection for version %d", versionID)
	}

	collection, err := s.db.GetOrCreateCollection(name, map[string]string{
		"version_id": strconv.FormatInt(versionID, 10),
	}, s.embeddingFunc())
	if err != nil {
		return apperr.Wrap(apperr.IndexingFailed, err, "cannot create collection for version %d", versionID)
	}

	if len(chunks) == 0 {
		log.Warn().Int64("version_id", versionID).Msg("indexing empty document")
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		vector, err := s.embedder.EmbedQuery(ctx, c.Text)
		if err != nil {
			return apperr.Wrap(apperr.IndexingFailed, err, "cannot embed chunk %s", c.ID())
		}
		docs = append(docs, chromem.Document{
			ID:        c.ID(),
			Content:   c.Text,
			Metadata:  metadataFor(c),
			Embedding: vector,
		})
	}

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return apperr.Wrap(apperr.IndexingFailed, err, "cannot add documents for version %d", versionID)
	}
	return nil
}

// Query embeds the query text with the same model used at indexing
// time and returns up to topK results ordered by similarity
// descending, ties broken by source sequence ascending. Querying a
// version that was never ingested is NotFound, not an empty result.
func (s *Store) Query(ctx context.Context, versionID int64, queryText string, topK int) ([]Result, error) {
	collection := s.db.GetCollection(collectionName(versionID), s.embeddingFunc())
	if collection == nil {
		return nil, apperr.New(apperr.NotFound, "no index for version %d", versionID)
	}

	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, apperr.Wrap(apperr.RetrievalFailed, err, "cannot embed query")
	}

	found, err := collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       topK,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.RetrievalFailed, err, "similarity search failed for version %d", versionID)
	}

	results := make([]Result, 0, len(found))
	for _, r := range found {
		sequence, _ := strconv.Atoi(r.Metadata["sequence"])
		results = append(results, Result{
			ID:         r.ID,
			BlockID:    r.Metadata["block_id"],
			Text:       r.Content,
			BlockType:  r.Metadata["block_type"],
			Sequence:   sequence,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		})
	}

	// chromem orders by similarity; pin down tie order for determinism
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].Sequence != results[j].Sequence {
			return results[i].Sequence < results[j].Sequence
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Has reports whether the version has an index.
func (s *Store) Has(versionID int64) bool {
	return s.db.GetCollection(collectionName(versionID), s.embeddingFunc()) != nil
}

// Purge drops the version's collection. Called when a version is
// soft-deleted; superseded versions keep their index until then.
func (s *Store) Purge(versionID int64) error {
	if err := s.db.DeleteCollection(collectionName(versionID)); err != nil {
		return apperr.Wrap(apperr.IndexingFailed, err, "cannot purge collection for version %d", versionID)
	}
	return nil
}

func metadataFor(c chunk.Chunk) map[string]string {
	return map[string]string{
		"block_id":    c.BlockID,
		"version_id":  strconv.FormatInt(c.Metadata.VersionID, 10),
		"doc_base_id": strconv.FormatInt(c.Metadata.DocBaseID, 10),
		"project_id":  c.Metadata.ProjectID,
		"block_type":  string(c.Metadata.BlockType),
		"sequence":    strconv.Itoa(c.Metadata.Sequence),
	}
}
