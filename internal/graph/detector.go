package graph

import (
	"regexp"
	"strings"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// Detector decides whether two topically similar chunks contradict each
// other. similarity is the cosine similarity of their embeddings, already
// above the contradiction threshold. The returned poles label the two
// sides of the conflict.
//
// The opposition signal is a pluggable heuristic; LexicalDetector is the
// default.
type Detector interface {
	Detect(a, b kernel.Chunk, similarity float32) (poleA, poleB string, ok bool)
}

// polePatterns extract named opposition poles from text, e.g.
// "expansion vs contraction" or "between freedom and duty".
var polePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\w+)\s+vs\.?\s+(\w+)`),
	regexp.MustCompile(`(?i)between\s+(\w+)\s+and\s+(\w+)`),
	regexp.MustCompile(`(?i)(\w+)\s+versus\s+(\w+)`),
}

var negationMarkers = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "nothing": true,
	"cannot": true, "can't": true, "won't": true, "don't": true,
	"doesn't": true, "didn't": true, "isn't": true, "aren't": true,
	"wasn't": true, "weren't": true, "without": true,
}

// LexicalDetector flags a contradiction when two chunks share enough
// content words but differ in polarity: one asserts, the other negates.
type LexicalDetector struct {
	// MinSharedWords is how many distinct content words two chunks must
	// share before polarity is compared.
	MinSharedWords int
}

// NewLexicalDetector returns a LexicalDetector with default settings.
func NewLexicalDetector() *LexicalDetector {
	return &LexicalDetector{MinSharedWords: 2}
}

// Detect implements Detector.
func (d *LexicalDetector) Detect(a, b kernel.Chunk, _ float32) (string, string, bool) {
	wordsA := contentWords(a.Content)
	wordsB := contentWords(b.Content)

	shared := 0
	for w := range wordsA {
		if wordsB[w] {
			shared++
		}
	}
	if shared < d.MinSharedWords {
		return "", "", false
	}

	negA := hasNegation(a.Content)
	negB := hasNegation(b.Content)
	if negA == negB {
		return "", "", false
	}

	poleA, poleB := extractPoles(a.Content + " " + b.Content)
	if poleA == "" {
		if negA {
			poleA, poleB = "negation", "assertion"
		} else {
			poleA, poleB = "assertion", "negation"
		}
	}
	return poleA, poleB, true
}

// contentWords returns the distinct lowercase words of 4+ characters.
func contentWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len(w) >= 4 && !negationMarkers[w] {
			words[w] = true
		}
	}
	return words
}

func hasNegation(text string) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if negationMarkers[strings.Trim(w, ".,;:!?\"'()[]")] {
			return true
		}
	}
	return false
}

// extractPoles pulls a named opposition pair out of text. Poles shorter
// than three characters or equal to each other are noise and rejected,
// matching the behavior of the pole patterns on stopword hits.
func extractPoles(text string) (string, string) {
	for _, re := range polePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			a := strings.ToLower(m[1])
			b := strings.ToLower(m[2])
			if len(a) < 3 || len(b) < 3 || a == b {
				continue
			}
			return a, b
		}
	}
	return "", ""
}
