// Package gate decides whether a query should be answered, answered with
// hedging, or refused.
//
// The gate is pure: it looks only at the query text and the retrieval
// scores. It never calls the model, so its decisions are the same across
// runs and safe to evaluate before any expensive generation.
package gate

import (
	"fmt"
	"regexp"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// Decision states.
const (
	StatePass    = "PASS"
	StatePartial = "PARTIAL"
	StateRefuse  = "REFUSE"
)

// Decision is the gate's verdict for one query.
type Decision struct {
	State    string  `json:"state"`
	TopScore float32 `json:"top_score"`
	Reason   string  `json:"reason,omitempty"`
}

// Gate evaluates queries against relevance thresholds and a disallowed
// pattern list.
//
// State is monotonic in the top score: raising the score never moves the
// decision toward refusal.
type Gate struct {
	minRelevance   float32
	highConfidence float32
	disallowed     []*regexp.Regexp
}

// New creates a Gate. Queries matching any disallowed pattern are
// refused outright; otherwise the top retrieval score picks the state.
func New(minRelevance, highConfidence float32, disallowed []string) (*Gate, error) {
	if highConfidence < minRelevance {
		return nil, fmt.Errorf("high confidence %.2f below min relevance %.2f", highConfidence, minRelevance)
	}

	patterns := make([]*regexp.Regexp, 0, len(disallowed))
	for _, p := range disallowed {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: disallowed pattern %q: %v", kernel.ErrValidation, p, err)
		}
		patterns = append(patterns, re)
	}
	return &Gate{
		minRelevance:   minRelevance,
		highConfidence: highConfidence,
		disallowed:     patterns,
	}, nil
}

// Refusal reports whether the query alone forces a refusal, before any
// retrieval happens. Callers can skip embedding and search entirely for
// such queries.
func (g *Gate) Refusal(query string) (Decision, bool) {
	for _, re := range g.disallowed {
		if re.MatchString(query) {
			return Decision{State: StateRefuse, Reason: "query matches a disallowed pattern"}, true
		}
	}
	return Decision{}, false
}

// Evaluate returns the decision for query given the retrieval scores,
// which must be in descending order (scores[0] is the top score).
func (g *Gate) Evaluate(query string, scores []float32) Decision {
	if d, refused := g.Refusal(query); refused {
		return d
	}

	if len(scores) == 0 {
		return Decision{State: StateRefuse, Reason: "no chunks retrieved"}
	}

	top := scores[0]
	switch {
	case top < g.minRelevance:
		return Decision{
			State:    StateRefuse,
			TopScore: top,
			Reason:   fmt.Sprintf("top score %.3f below relevance floor %.3f", top, g.minRelevance),
		}
	case top < g.highConfidence:
		return Decision{
			State:    StatePartial,
			TopScore: top,
			Reason:   fmt.Sprintf("top score %.3f below confidence threshold %.3f", top, g.highConfidence),
		}
	default:
		return Decision{State: StatePass, TopScore: top}
	}
}
