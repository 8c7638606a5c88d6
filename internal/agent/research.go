package agent

import (
	"context"
	"fmt"
	"strings"
)

// InferenceResearch synthesizes a short summary from the page fragments a
// task's BROWSE steps collected.
type InferenceResearch struct {
	client Completer
	model  string
}

func NewInferenceResearch(client Completer, model string) *InferenceResearch {
	return &InferenceResearch{client: client, model: model}
}

func (r *InferenceResearch) Synthesize(ctx context.Context, goal string, pages []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nSummarize the following page excerpts in a few sentences:\n\n", goal)
	for i, page := range pages {
		fmt.Fprintf(&b, "--- page %d ---\n%s\n\n", i+1, page)
	}

	summary, err := r.client.Complete(ctx, r.model, b.String(), false)
	if err != nil {
		return "", fmt.Errorf("research: %w", err)
	}
	return summary, nil
}
