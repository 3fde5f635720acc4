package extract

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"docqa/internal/apperr"
)

// docxSource reads a Word document through the docx engine and parses
// the body XML structurally, so tables survive as tables instead of
// flattened text.
type docxSource struct {
	reader *docx.ReplaceDocx
}

func (s *docxSource) Open(path string) error {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return apperr.Wrap(apperr.ExtractionFailed, err, "cannot open document")
	}
	s.reader = r
	return nil
}

func (s *docxSource) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

func (s *docxSource) Blocks() ([]ContentBlock, error) {
	content := s.reader.Editable().GetContent()
	return parseDocumentXML([]byte(content))
}

// documentXML mirrors the parts of word/document.xml we care about.
// Only body-level paragraphs are listed under Paragraphs; paragraphs
// inside table cells are reached through Tables.
type documentXML struct {
	Body struct {
		Paragraphs []paragraphXML `xml:"p"`
		Tables     []tableXML     `xml:"tbl"`
	} `xml:"body"`
}

type paragraphXML struct {
	Runs []runXML `xml:"r"`
}

type runXML struct {
	Text []textXML `xml:"t"`
}

type textXML struct {
	Content string `xml:",chardata"`
}

type tableXML struct {
	Rows []tableRowXML `xml:"tr"`
}

type tableRowXML struct {
	Cells []tableCellXML `xml:"tc"`
}

type tableCellXML struct {
	Paragraphs []paragraphXML `xml:"p"`
}

// parseDocumentXML emits non-table paragraphs first, then every table
// as a single Markdown-rendered block, both in document order.
func parseDocumentXML(content []byte) ([]ContentBlock, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, apperr.Wrap(apperr.ExtractionFailed, err, "cannot parse document body")
	}

	var blocks []ContentBlock
	sequence := 0
	for _, p := range doc.Body.Paragraphs {
		text := cleanText(paragraphText(p))
		if text == "" {
			continue
		}
		blocks = append(blocks, ContentBlock{Type: Paragraph, Content: text, Sequence: sequence})
		sequence++
	}
	for _, tbl := range doc.Body.Tables {
		md, err := tableToMarkdown(tbl)
		if err != nil {
			// a single malformed table must not abort the rest of the
			// document
			md = fmt.Sprintf("[table conversion failed: %v]", err)
		}
		blocks = append(blocks, ContentBlock{Type: Table, Content: md, Sequence: sequence})
		sequence++
	}
	return blocks, nil
}

func paragraphText(p paragraphXML) string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

func tableToMarkdown(tbl tableXML) (string, error) {
	if len(tbl.Rows) == 0 {
		return "", fmt.Errorf("table has no rows")
	}
	rows := make([][]string, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			var parts []string
			for _, p := range cell.Paragraphs {
				if text := cleanText(paragraphText(p)); text != "" {
					parts = append(parts, text)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		rows = append(rows, cells)
	}
	return markdownTable(rows)
}

// cleanText strips control and paragraph-mark characters left over
// from the document engine.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\a', '\x00':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
