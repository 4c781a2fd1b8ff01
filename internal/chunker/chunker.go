package chunker

import (
	"strings"
)

// Default window sizes, in words.
const (
	DefaultMaxWords     = 220
	DefaultOverlapWords = 40
)

// Chunker splits cleaned text into overlapping word windows built from whole sentences.
type Chunker struct {
	maxWords     int
	overlapWords int
}

// Window is one chunk. Overlap counts the leading words copied from the previous window.
type Window struct {
	Words   []string
	Overlap int
}

// Text returns the window as a single string
func (w Window) Text() string {
	return strings.Join(w.Words, " ")
}

func New(maxWords, overlapWords int) *Chunker {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= maxWords {
		overlapWords = maxWords - 1
	}
	return &Chunker{
		maxWords:     maxWords,
		overlapWords: overlapWords,
	}
}

// MaxWords returns the window size
func (c *Chunker) MaxWords() int { return c.maxWords }

// OverlapWords returns the number of words carried between windows
func (c *Chunker) OverlapWords() int { return c.overlapWords }

// Split returns the chunk texts for text. Empty or whitespace-only text yields none.
func (c *Chunker) Split(text string) []string {
	windows := c.Windows(text)
	chunks := make([]string, 0, len(windows))
	for _, w := range windows {
		chunks = append(chunks, w.Text())
	}
	return chunks
}

// Windows accumulates sentences greedily into windows of at most MaxWords words.
// A sentence of MaxWords words or more becomes its own window, untruncated.
// When a sentence does not fit, the buffer is flushed and the next window is
// seeded with the last OverlapWords words of the flushed one. A seeded window
// may therefore exceed MaxWords by up to OverlapWords.
func (c *Chunker) Windows(text string) []Window {
	var (
		windows []Window
		buf     []string
		seeded  int
	)

	flush := func() {
		if len(buf) > 0 {
			windows = append(windows, Window{Words: buf, Overlap: seeded})
		}
		buf, seeded = nil, 0
	}

	for _, sentence := range SplitSentences(text) {
		words := strings.Fields(sentence)

		if len(words) >= c.maxWords {
			flush()
			windows = append(windows, Window{Words: words})
			continue
		}

		if len(buf)+len(words) > c.maxWords {
			prev := buf
			flush()
			n := min(c.overlapWords, len(prev))
			buf = append([]string(nil), prev[len(prev)-n:]...)
			seeded = n
		}
		buf = append(buf, words...)
	}
	flush()

	return windows
}

// SplitSentences normalizes whitespace and splits text after '.', '!' or '?'
// followed by whitespace.
func SplitSentences(text string) []string {
	var (
		sentences []string
		current   []string
	)
	for _, word := range strings.Fields(text) {
		current = append(current, word)
		switch word[len(word)-1] {
		case '.', '!', '?':
			sentences = append(sentences, strings.Join(current, " "))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, strings.Join(current, " "))
	}
	return sentences
}
