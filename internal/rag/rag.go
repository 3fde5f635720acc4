package rag

import (
	"context"

	"github.com/rs/zerolog/log"

	"docqa/internal/apperr"
	"docqa/internal/llm"
	"docqa/internal/vectorstore"
)

const defaultTopK = 5

// Service answers questions about a document version by retrieving
// similar chunks and forwarding them to the LLM.
type Service struct {
	vectors *vectorstore.Store
	client  *llm.Client
	topK    int
}

// Answer is a generated response with the block ids of the retrieved
// source content, in retrieval order.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
}

func NewService(vectors *vectorstore.Store, client *llm.Client, topK int) *Service {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Service{vectors: vectors, client: client, topK: topK}
}

// Retrieve returns the top-K most similar chunks for the query.
func (s *Service) Retrieve(ctx context.Context, query string, versionID int64) ([]vectorstore.Result, error) {
	return s.vectors.Query(ctx, versionID, query, s.topK)
}

// Answer runs the full query path: retrieve, build the prompt, call
// the LLM. A failed generation surfaces as UpstreamFailed and nothing
// is persisted by this layer.
func (s *Service) Answer(ctx context.Context, query string, versionID int64, apiKey string) (*Answer, error) {
	results, err := s.Retrieve(ctx, query, versionID)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(query, results)
	log.Debug().Int64("version_id", versionID).Int("results", len(results)).Msg("generating answer")

	res := s.client.Generate(ctx, apiKey, prompt)
	if !res.OK() {
		return nil, apperr.New(apperr.UpstreamFailed, "%s", res.Err)
	}

	return &Answer{Text: res.Answer, Sources: citedBlockIDs(results)}, nil
}

// citedBlockIDs de-duplicates block ids while keeping retrieval order,
// so a block split into several chunks is cited once.
func citedBlockIDs(results []vectorstore.Result) []string {
	seen := make(map[string]struct{}, len(results))
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.BlockID]; ok {
			continue
		}
		seen[r.BlockID] = struct{}{}
		ids = append(ids, r.BlockID)
	}
	return ids
}
