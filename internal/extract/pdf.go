package extract

import (
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"docqa/internal/apperr"
)

// extractPDF emits one paragraph block per non-empty page.
func extractPDF(path string) ([]ContentBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExtractionFailed, err, "cannot open document")
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, apperr.Wrap(apperr.ExtractionFailed, err, "cannot stat document")
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, apperr.Wrap(apperr.ExtractionFailed, err, "cannot parse document")
	}

	var blocks []ContentBlock
	sequence := 0
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, apperr.Wrap(apperr.ExtractionFailed, err, "cannot read page %d", i)
		}
		text := strings.TrimSpace(pageText)
		if text == "" {
			continue
		}
		blocks = append(blocks, ContentBlock{Type: Paragraph, Content: text, Sequence: sequence})
		sequence++
	}
	return blocks, nil
}
