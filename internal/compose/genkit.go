package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// GenkitGenerator runs prompts through a Genkit-registered model.
type GenkitGenerator struct {
	g         *genkit.Genkit
	modelName string
}

// NewGenkitGenerator wraps an initialized Genkit instance.
func NewGenkitGenerator(g *genkit.Genkit, modelName string) (*GenkitGenerator, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: genkit not initialized", kernel.ErrModelUnavailable)
	}
	return &GenkitGenerator{g: g, modelName: modelName}, nil
}

// Generate runs one prompt and returns the response text.
func (gg *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	opts := []ai.GenerateOption{ai.WithPrompt(prompt)}
	if gg.modelName != "" {
		opts = append(opts, ai.WithModelName(gg.modelName))
	}

	resp, err := genkit.Generate(ctx, gg.g, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", kernel.ErrModelUnavailable, err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
