package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"docqa/internal/extract"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

// BlocksToHTML renders content blocks for the document viewer. Each
// block is wrapped in a div whose id is the block's stable identifier,
// so chat citations can scroll to their source.
func BlocksToHTML(versionID int64, blocks []extract.ContentBlock) (string, error) {
	var b strings.Builder
	for _, block := range blocks {
		var buf bytes.Buffer
		if err := md.Convert([]byte(block.Content), &buf); err != nil {
			return "", fmt.Errorf("rendering block %d: %w", block.Sequence, err)
		}
		fmt.Fprintf(&b, "<div class=\"doc-block doc-block-%s\" id=\"%s\">\n%s</div>\n",
			block.Type, extract.BlockID(versionID, block.Type, block.Sequence), buf.String())
	}
	return b.String(), nil
}
