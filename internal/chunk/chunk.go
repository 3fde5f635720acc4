package chunk

import (
	"fmt"

	"docqa/internal/apperr"
	"docqa/internal/extract"
)

// Metadata travels with every chunk so retrieval results can be mapped
// back to their originating block and enclosing document version.
type Metadata struct {
	VersionID int64
	DocBaseID int64
	ProjectID string
	BlockType extract.BlockType
	Sequence  int
}

// Chunk is a slice of one content block's text, never spanning a
// block boundary.
type Chunk struct {
	BlockID  string
	Part     int
	Text     string
	Metadata Metadata
}

// ID is the deterministic vector-store document id: the block id plus
// the part index within the block.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s_%d", c.BlockID, c.Part)
}

// Splitter cuts block content into fixed-size chunks with overlap.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter validates the chunking parameters. Overlap must be
// strictly less than size; this is a configuration error caught at
// startup, not a runtime failure.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, apperr.New(apperr.ValidationError, "chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, apperr.New(apperr.ValidationError, "chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, apperr.New(apperr.ValidationError, "chunk overlap (%d) must be strictly less than chunk size (%d)", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split chunks each block independently, carrying the block's metadata
// forward. The output is deterministic for identical input.
func (s *Splitter) Split(blocks []extract.ContentBlock, versionID, docBaseID int64, projectID string) []Chunk {
	var chunks []Chunk
	for _, block := range blocks {
		blockID := extract.BlockID(versionID, block.Type, block.Sequence)
		meta := Metadata{
			VersionID: versionID,
			DocBaseID: docBaseID,
			ProjectID: projectID,
			BlockType: block.Type,
			Sequence:  block.Sequence,
		}
		for part, text := range s.splitText(block.Content) {
			chunks = append(chunks, Chunk{
				BlockID:  blockID,
				Part:     part,
				Text:     text,
				Metadata: meta,
			})
		}
	}
	return chunks
}

// splitText cuts text into windows of size runes advancing by
// size-overlap, so consecutive chunks share exactly overlap runes.
// Concatenating the first chunk with each later chunk minus its
// leading overlap reconstructs the input.
func (s *Splitter) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.size {
		return []string{text}
	}

	step := s.size - s.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
