package extract

import (
	"fmt"
	"strings"

	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"docqa/internal/apperr"
)

// extractXLSX emits one table block per non-empty sheet, rendered as a
// Markdown table with the first row as header.
func extractXLSX(path string) ([]ContentBlock, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExtractionFailed, err, "cannot open workbook")
	}

	var blocks []ContentBlock
	sequence := 0
	for _, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, strings.TrimSpace(cell.String()))
			}
			rows = append(rows, cells)
		}
		if block, ok := sheetBlock(sheet.Name, rows, sequence); ok {
			blocks = append(blocks, block)
			sequence++
		}
	}
	return blocks, nil
}

// extractODS is the OpenDocument sibling of extractXLSX.
func extractODS(path string) ([]ContentBlock, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExtractionFailed, err, "cannot open workbook")
	}
	defer f.Close()

	var blocks []ContentBlock
	sequence := 0
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		if block, ok := sheetBlock(sheetName, rows, sequence); ok {
			blocks = append(blocks, block)
			sequence++
		}
	}
	return blocks, nil
}

func sheetBlock(name string, rows [][]string, sequence int) (ContentBlock, bool) {
	md, err := markdownTable(rows)
	if err != nil {
		return ContentBlock{}, false
	}
	content := fmt.Sprintf("Sheet: %s\n%s", name, md)
	return ContentBlock{Type: Table, Content: content, Sequence: sequence}, true
}
