package splitter

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter textsplitter.TextSplitter
	maxRunes int
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &TextSplitter{splitter: ts, maxRunes: chunkSize}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// Clip returns the leading chunk of text, cut at a paragraph, line or word
// boundary where possible. Text that fits in one chunk is returned unchanged.
func (ts *TextSplitter) Clip(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) <= ts.maxRunes {
		return text
	}
	chunks, err := ts.splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return truncate(text, ts.maxRunes)
	}
	return truncate(chunks[0], ts.maxRunes)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
