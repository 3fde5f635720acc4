package extract

import (
	"fmt"
	"strings"
)

// markdownTable renders rows as a GFM table: first row is the header,
// followed by a separator of the header's column count, then the body.
// Rows shorter than the header are padded with empty cells.
func markdownTable(rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("table has no rows")
	}
	cols := len(rows[0])
	if cols == 0 {
		return "", fmt.Errorf("table has no columns")
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for col := 0; col < cols; col++ {
			cell := ""
			if col < len(cells) {
				cell = cells[col]
			}
			b.WriteString(" " + cell + " |")
		}
	}

	writeRow(rows[0])
	b.WriteString("\n|")
	for col := 0; col < cols; col++ {
		b.WriteString(" --- |")
	}
	for _, row := range rows[1:] {
		b.WriteString("\n")
		writeRow(row)
	}
	return b.String(), nil
}
