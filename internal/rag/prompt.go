package rag

import (
	"strings"

	"docqa/internal/extract"
	"docqa/internal/vectorstore"
)

const tableLabel = "Table content:"

const (
	promptPreamble = "Answer the user's question based only on the document content below. " +
		"If the answer cannot be found in the document content, say so explicitly."
	promptClosing = "Provide an accurate and complete answer, citing the source content where possible."
)

// BuildPrompt assembles the retrieved context and the query into a
// single prompt. Pure and deterministic: results are concatenated in
// the order given (retrieval's similarity order), separated by a blank
// line, with table results prefixed by a fixed label.
func BuildPrompt(query string, results []vectorstore.Result) string {
	contextTexts := make([]string, 0, len(results))
	for _, r := range results {
		if r.BlockType == string(extract.Table) {
			contextTexts = append(contextTexts, tableLabel+"\n"+r.Text)
		} else {
			contextTexts = append(contextTexts, r.Text)
		}
	}

	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nDocument content:\n")
	b.WriteString(strings.Join(contextTexts, "\n\n"))
	b.WriteString("\n\nUser question:\n")
	b.WriteString(query)
	b.WriteString("\n\n")
	b.WriteString(promptClosing)
	return b.String()
}
