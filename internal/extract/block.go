package extract

import "fmt"

// BlockType distinguishes prose from tabular content.
type BlockType string

const (
	Paragraph BlockType = "paragraph"
	Table     BlockType = "table"
)

// ContentBlock is one unit of extracted document content, in document
// order. Sequence counts emitted blocks only; empty paragraphs are
// skipped, so sequences are not contiguous with raw paragraph indices.
// Blocks are immutable once produced.
type ContentBlock struct {
	Type     BlockType `json:"type"`
	Content  string    `json:"content"`
	Sequence int       `json:"sequence"`
}

// BlockID derives the stable identifier used for citations and viewer
// anchors. It is reproducible from (version, type, sequence) alone so
// cited sources can be mapped back to blocks without a lookup table.
func BlockID(versionID int64, blockType BlockType, sequence int) string {
	return fmt.Sprintf("doc_%d_%s_%d", versionID, blockType, sequence)
}
