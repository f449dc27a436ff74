package compose

import (
	"fmt"
	"strings"

	"github.com/kernelworks/kernelstudio/internal/gate"
)

// fallbackAnswer renders a deterministic rule-based answer from the
// retrieved context. It uses no randomness and no model, so the same
// input always produces the same answer, and it cannot fail.
func fallbackAnswer(in Input) string {
	var sections []string

	// Opening quote from the best-matching excerpt.
	if len(in.Results) > 0 {
		sections = append(sections,
			fmt.Sprintf("%q", truncate(in.Results[0].Chunk.Content, 200)))
	}

	// Guidance bullets.
	var bullets []string
	if in.Decision.State == gate.StatePartial {
		bullets = append(bullets,
			"- The sources only partially cover this question; treat the answer as incomplete.")
	}
	if len(in.Contradictions) > 0 {
		e := in.Contradictions[0]
		bullets = append(bullets,
			fmt.Sprintf("- The sources disagree: weigh %s against %s.", e.PoleA, e.PoleB))
	}
	bullets = append(bullets,
		fmt.Sprintf("- Based on %d relevant excerpt(s), the sources address: %s",
			min(len(in.Results), maxContextChunks), in.Query))
	sections = append(sections, strings.Join(bullets, "\n"))

	// Footnote citations.
	var footnotes []string
	for i, r := range in.Results {
		if i == maxContextChunks {
			break
		}
		footnotes = append(footnotes,
			fmt.Sprintf("[%d] %s — %s", i+1, r.Chunk.Source, r.Chunk.ID))
	}
	if len(footnotes) > 0 {
		sections = append(sections, strings.Join(footnotes, "\n"))
	}

	return strings.Join(sections, "\n\n")
}
