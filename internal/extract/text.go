package extract

import (
	"os"
	"strings"

	"docqa/internal/apperr"
)

// extractText emits one paragraph block per non-empty line.
func extractText(path string) ([]ContentBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExtractionFailed, err, "cannot read document")
	}

	var blocks []ContentBlock
	sequence := 0
	for _, line := range strings.Split(string(data), "\n") {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		blocks = append(blocks, ContentBlock{Type: Paragraph, Content: text, Sequence: sequence})
		sequence++
	}
	return blocks, nil
}
