package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/liliang-cn/sitebot/internal/vectorindex"
)

// DefaultMaxContextChars bounds the context block when no budget is configured
const DefaultMaxContextChars = 6000

const promptInstruction = "You are a helpful assistant created to answer questions using ONLY the context provided.\n" +
	"If the context does not contain the answer, say that you do not know."

// BuildPrompt composes the grounded prompt for a question. Chunks are numbered
// and attributed to their page, in retrieval order, and the context block is
// cut at maxChars.
func BuildPrompt(question string, matches []vectorindex.Match, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	var ctx strings.Builder
	for i, m := range matches {
		entry := fmt.Sprintf("[%d] (source: %s)\n%s", i+1, m.Metadata.PageURL, strings.TrimSpace(m.Text))
		if i > 0 {
			entry = "\n\n" + entry
		}

		remaining := maxChars - ctx.Len()
		if remaining <= 0 {
			break
		}
		if len(entry) > remaining {
			entry = truncateUTF8(entry, remaining)
		}
		ctx.WriteString(entry)
	}

	var b strings.Builder
	b.WriteString(promptInstruction)
	b.WriteString("\n\n--- CONTEXT ---\n")
	b.WriteString(ctx.String())
	b.WriteString("\n--- END CONTEXT ---\n\n")
	b.WriteString("User question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nNow provide a clear, short, accurate answer based strictly on the context.\n")
	return b.String()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
