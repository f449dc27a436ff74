// Package compose synthesizes answers from retrieved context.
//
// A configured model is used when available; every model failure after
// retries degrades to a deterministic rule-based answer, so a well-formed
// chat request always gets an answer. Refusals from the gate never reach
// the model at all.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kernelworks/kernelstudio/internal/gate"
	"github.com/kernelworks/kernelstudio/internal/kernel"
	"github.com/kernelworks/kernelstudio/internal/store"
)

// Answer composition methods, recorded per turn.
const (
	MethodModel    = "model"
	MethodFallback = "rule-based-fallback"
	MethodRefusal  = "refusal"
)

// RefusalMessage is the fixed answer for refused queries.
const RefusalMessage = "I can't answer this from the knowledge in this kernel."

// maxContextChunks bounds how many retrieved chunks feed the prompt and
// the fallback template.
const maxContextChunks = 5

// Generator produces text from a prompt. The production implementation
// wraps Genkit; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Input carries everything the composer needs for one turn.
type Input struct {
	KernelName     string
	Query          string
	Decision       gate.Decision
	Results        []store.SearchResult
	Contradictions []kernel.ContradictionEdge
	History        []kernel.ConversationTurn // newest first
}

// Output is the composed answer with its provenance.
type Output struct {
	Answer string
	Method string
}

// Composer turns gate decisions and retrieved context into answers.
type Composer struct {
	generator Generator // nil when no model is configured
	retry     RetryConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a Composer. generator may be nil, in which case every
// non-refused query is answered by the deterministic fallback. limiter
// may be nil to disable rate limiting.
func New(generator Generator, retry RetryConfig, limiter *rate.Limiter, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{generator: generator, retry: retry, limiter: limiter, logger: logger}
}

// Compose produces the answer for one turn. It never returns an error
// for a refused or fallback-eligible query; only context cancellation
// surfaces.
func (c *Composer) Compose(ctx context.Context, in Input) (Output, error) {
	if in.Decision.State == gate.StateRefuse {
		return Output{Answer: RefusalMessage, Method: MethodRefusal}, nil
	}

	if c.generator != nil {
		answer, err := c.generateWithRetry(ctx, buildPrompt(in))
		if err == nil && strings.TrimSpace(answer) != "" {
			return Output{Answer: answer, Method: MethodModel}, nil
		}
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		c.logger.Warn("model generation failed, using fallback", "error", err)
	}

	return Output{Answer: fallbackAnswer(in), Method: MethodFallback}, nil
}

// buildPrompt renders the model prompt: persona, history, numbered
// context excerpts, known contradictions, and hedging instructions for
// partial-confidence turns.
func buildPrompt(in Input) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You answer questions strictly from the knowledge base %q.\n", in.KernelName)
	sb.WriteString("Cite excerpts with bracketed numbers like [1]. Do not invent facts beyond the excerpts.\n")
	if in.Decision.State == gate.StatePartial {
		sb.WriteString("The retrieved context is only loosely related; hedge accordingly and say what is uncertain.\n")
	}

	if len(in.History) > 0 {
		sb.WriteString("\nRecent conversation, oldest first:\n")
		for i := len(in.History) - 1; i >= 0; i-- {
			turn := in.History[i]
			fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", turn.Query, turn.Answer)
		}
	}

	sb.WriteString("\nContext excerpts:\n")
	for i, r := range in.Results {
		if i == maxContextChunks {
			break
		}
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, r.Chunk.Source, truncate(r.Chunk.Content, 300))
	}

	if len(in.Contradictions) > 0 {
		sb.WriteString("\nThe knowledge base contains conflicting claims:\n")
		for i, e := range in.Contradictions {
			if i == 3 {
				break
			}
			fmt.Fprintf(&sb, "- %s vs %s (confidence %.2f)\n", e.PoleA, e.PoleB, e.Confidence)
		}
		sb.WriteString("Acknowledge the conflict instead of picking a side silently.\n")
	}

	fmt.Fprintf(&sb, "\nQuestion: %s\n", in.Query)
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	cut := n
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
