package extract

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"docqa/internal/apperr"
)

// Source is a scoped document resource: open, read blocks, release.
// Implementations must tolerate Close after a failed Open.
type Source interface {
	Open(path string) error
	Blocks() ([]ContentBlock, error)
	Close() error
}

// The docx engine is not safe for concurrent use across extraction
// jobs, so its open/parse/close window is serialized.
var docxMu sync.Mutex

// Extract converts a document file into its ordered content blocks.
// Missing files yield NotFound; unreadable documents ExtractionFailed.
func Extract(path string) ([]ContentBlock, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.NotFound, err, "document not found: %s", filepath.Base(path))
		}
		return nil, apperr.Wrap(apperr.ExtractionFailed, err, "cannot stat document: %s", filepath.Base(path))
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".docx":
		docxMu.Lock()
		defer docxMu.Unlock()
		return withSource(&docxSource{}, path)
	case ".pdf":
		return extractPDF(path)
	case ".xlsx":
		return extractXLSX(path)
	case ".ods":
		return extractODS(path)
	case ".txt":
		return extractText(path)
	default:
		return nil, apperr.New(apperr.ExtractionFailed, "unsupported file format: %s", ext)
	}
}

// withSource guarantees the source is released on every exit path,
// including a failed Blocks call.
func withSource(src Source, path string) ([]ContentBlock, error) {
	if err := src.Open(path); err != nil {
		if cerr := src.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("path", path).Msg("closing document source after failed open")
		}
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("path", path).Msg("closing document source")
		}
	}()
	return src.Blocks()
}
