package ingest

import (
	"regexp"
	"strings"
)

// sentenceSplitter matches sentence-terminated spans. Text after the last
// terminator is handled separately so trailing fragments are not lost.
var sentenceSplitter = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Chunker splits extracted text into overlapping chunks.
//
// Chunks are built from whole sentences up to a character budget, with
// the last overlapSentences sentences repeated at the start of the next
// chunk so context survives the boundary. A single sentence longer than
// the budget is hard-split rather than dropped.
type Chunker struct {
	maxChars         int
	overlapSentences int
}

// NewChunker creates a Chunker with the given window and overlap.
func NewChunker(maxChars, overlapSentences int) *Chunker {
	if maxChars <= 0 {
		maxChars = 1200
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	return &Chunker{maxChars: maxChars, overlapSentences: overlapSentences}
}

// Chunk splits text into chunk contents in document order.
// Returns nil for text with no usable content.
func (c *Chunker) Chunk(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	// Oversize sentences are split up front so the assembly loop below
	// only ever deals with sentences that fit the window.
	var fitted []string
	for _, s := range sentences {
		fitted = append(fitted, hardSplit(s, c.maxChars)...)
	}

	var chunks []string
	i := 0
	for i < len(fitted) {
		end := i
		size := 0
		for end < len(fitted) {
			next := len(fitted[end])
			if size > 0 {
				next++ // joining space
			}
			if size+next > c.maxChars {
				break
			}
			size += next
			end++
		}
		if end == i {
			end = i + 1 // always make progress
		}

		chunks = append(chunks, strings.Join(fitted[i:end], " "))
		if end == len(fitted) {
			break
		}

		// The overlap must never move the cursor back to or before the
		// previous start, or the loop would not terminate.
		i = max(end-c.overlapSentences, i+1)
	}
	return chunks
}

func splitSentences(text string) []string {
	spans := sentenceSplitter.FindAllStringIndex(text, -1)

	var sentences []string
	last := 0
	for _, span := range spans {
		if s := strings.TrimSpace(text[span[0]:span[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = span[1]
	}
	// Keep any trailing fragment that never saw a terminator.
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func hardSplit(s string, maxChars int) []string {
	if len(s) <= maxChars {
		return []string{s}
	}
	var parts []string
	for len(s) > maxChars {
		// Split on rune boundary at or below the budget.
		cut := maxChars
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxChars
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
