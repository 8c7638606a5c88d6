package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/remotepilot/daemon/internal/task"
)

// actionCatalog is the one-line semantics shown to the planner model for
// each entry of §4.4.
const actionCatalog = `Action catalog:
- COMMAND: run a shell string (value)
- TYPE: type text (value) with a per-character interval
- HOTKEY: press a "+"-separated key combination (value)
- CLICK: move-and-click at screen coordinates (x, y)
- WAIT: sleep for value seconds
- BROWSE: open a page (url) and return the first N characters of body text
- CLICK_BROWSER: click an element (selector) in the shared browser context`

// Completer is the subset of inference.Client the planner needs.
type Completer interface {
	Complete(ctx context.Context, model, prompt string, jsonMode bool) (string, error)
}

// InferencePlanner is the Planner backed by the inference client, optionally
// seeded with few-shot examples from Semantic Memory.
type InferencePlanner struct {
	client Completer
	model  string
	memory Memory // may be nil: planning then proceeds with no few-shot context
}

// NewInferencePlanner constructs a Planner. memory may be nil.
func NewInferencePlanner(client Completer, model string, memory Memory) *InferencePlanner {
	return &InferencePlanner{client: client, model: model, memory: memory}
}

func (p *InferencePlanner) Plan(ctx context.Context, goal string) (task.Plan, error) {
	var fewShot string
	if p.memory != nil {
		entries, err := p.memory.Retrieve(ctx, goal, 3)
		if err == nil && len(entries) > 0 {
			fewShot = formatFewShot(entries)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	b.WriteString(actionCatalog)
	b.WriteString("\n\n")
	if fewShot != "" {
		b.WriteString("Similar past goals and the plans that succeeded:\n")
		b.WriteString(fewShot)
		b.WriteString("\n")
	}
	b.WriteString(`Respond with JSON only: a sequence of steps, e.g. {"plan": [{"action": "...", "value": "..."}]}.`)

	raw, err := p.client.Complete(ctx, p.model, b.String(), true)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	plan, err := task.ParsePlan([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	return plan, nil
}

func (p *InferencePlanner) RePlan(ctx context.Context, req RePlanRequest) (task.Plan, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", req.Goal)
	fmt.Fprintf(&b, "The previous attempt failed at step %+v.\n", req.FailedStep)
	fmt.Fprintf(&b, "Verifier said: %s\n", req.VerifierDetail)
	if req.VisionContext != "" {
		fmt.Fprintf(&b, "Current screen: %s\n", req.VisionContext)
	}
	b.WriteString("\n")
	b.WriteString(actionCatalog)
	b.WriteString("\n\nTry a structurally different approach. ")
	b.WriteString(`Respond with JSON only: a sequence of steps, e.g. {"plan": [{"action": "...", "value": "..."}]}.`)

	raw, err := p.client.Complete(ctx, p.model, b.String(), true)
	if err != nil {
		return nil, fmt.Errorf("planner re-plan: %w", err)
	}

	plan, err := task.ParsePlan([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("planner re-plan: %w", err)
	}
	return plan, nil
}

func formatFewShot(entries []MemoryEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "- goal: %q, plan: %v\n", e.Goal, e.Plan)
	}
	return b.String()
}
