package ingest

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"docqa/internal/apperr"
	"docqa/internal/chunk"
	"docqa/internal/extract"
	"docqa/internal/store"
	"docqa/internal/vectorstore"
)

// Job is one document version to ingest.
type Job struct {
	FilePath  string
	VersionID int64
	DocBaseID int64
	ProjectID string
}

// Service runs ingestion jobs off the request path. At most one job
// runs per version at a time, so the processing -> ready|error
// transition cannot be raced.
type Service struct {
	db       *bun.DB
	vectors  *vectorstore.Store
	splitter *chunk.Splitter

	mu      sync.Mutex
	running map[int64]struct{}
}

func NewService(db *bun.DB, vectors *vectorstore.Store, splitter *chunk.Splitter) *Service {
	return &Service{
		db:       db,
		vectors:  vectors,
		splitter: splitter,
		running:  make(map[int64]struct{}),
	}
}

// Enqueue starts the job in the background and returns immediately. A
// second job for a version that is still ingesting is rejected.
func (s *Service) Enqueue(job Job) error {
	if !s.acquire(job.VersionID) {
		return apperr.New(apperr.ValidationError, "ingestion already running for version %d", job.VersionID)
	}
	go func() {
		defer s.release(job.VersionID)
		s.run(context.Background(), job)
	}()
	return nil
}

// RunSync runs the job on the calling goroutine. Used by the CLI.
func (s *Service) RunSync(ctx context.Context, job Job) error {
	if !s.acquire(job.VersionID) {
		return apperr.New(apperr.ValidationError, "ingestion already running for version %d", job.VersionID)
	}
	defer s.release(job.VersionID)
	return s.run(ctx, job)
}

// run executes the pipeline and records the terminal status. Failures
// are terminal for the version; re-upload is the recovery path.
func (s *Service) run(ctx context.Context, job Job) error {
	if err := s.Ingest(ctx, job); err != nil {
		log.Error().Err(err).Int64("version_id", job.VersionID).Msg("ingestion failed")
		if serr := store.MarkVersionError(ctx, s.db, job.VersionID, err.Error()); serr != nil {
			log.Error().Err(serr).Int64("version_id", job.VersionID).Msg("recording ingestion failure")
		}
		return err
	}
	if err := store.MarkVersionReady(ctx, s.db, job.VersionID); err != nil {
		log.Error().Err(err).Int64("version_id", job.VersionID).Msg("marking version ready")
		return err
	}
	log.Info().Int64("version_id", job.VersionID).Msg("version ready")
	return nil
}

// Ingest is the extract -> chunk -> index pipeline.
func (s *Service) Ingest(ctx context.Context, job Job) error {
	blocks, err := extract.Extract(job.FilePath)
	if err != nil {
		return err
	}
	log.Debug().Int64("version_id", job.VersionID).Int("blocks", len(blocks)).Msg("extracted content blocks")

	chunks := s.splitter.Split(blocks, job.VersionID, job.DocBaseID, job.ProjectID)
	return s.vectors.Index(ctx, job.VersionID, chunks)
}

func (s *Service) acquire(versionID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[versionID]; busy {
		return false
	}
	s.running[versionID] = struct{}{}
	return true
}

func (s *Service) release(versionID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, versionID)
}
