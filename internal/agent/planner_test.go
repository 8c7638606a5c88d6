package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/remotepilot/daemon/internal/task"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(ctx context.Context, model, prompt string, jsonMode bool) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

type fakeMemory struct {
	entries []MemoryEntry
}

func (f *fakeMemory) Add(ctx context.Context, goal string, plan task.Plan) error { return nil }
func (f *fakeMemory) Retrieve(ctx context.Context, goal string, topK int) ([]MemoryEntry, error) {
	return f.entries, nil
}

func TestInferencePlanner_Plan(t *testing.T) {
	c := &fakeCompleter{response: `{"plan":[{"action":"HOTKEY","value":"win+r"}]}`}
	p := NewInferencePlanner(c, "planner-model", nil)

	plan, err := p.Plan(context.Background(), "open notepad")
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.Equal(t, task.ActionHotkey, plan[0].Action)
	require.Contains(t, c.prompts[0], "open notepad")
}

func TestInferencePlanner_PlanIncludesFewShot(t *testing.T) {
	mem := &fakeMemory{entries: []MemoryEntry{{Goal: "open calculator", Plan: task.Plan{{Action: task.ActionHotkey, Value: "win+r"}}}}}
	c := &fakeCompleter{response: `{"plan":[{"action":"HOTKEY","value":"win+r"}]}`}
	p := NewInferencePlanner(c, "planner-model", mem)

	_, err := p.Plan(context.Background(), "open notepad")
	require.NoError(t, err)
	require.Contains(t, c.prompts[0], "open calculator")
}

func TestInferencePlanner_MalformedResponse(t *testing.T) {
	c := &fakeCompleter{response: "not json at all and not a plan"}
	p := NewInferencePlanner(c, "planner-model", nil)

	_, err := p.Plan(context.Background(), "open notepad")
	require.Error(t, err)
}

func TestInferencePlanner_CompleteError(t *testing.T) {
	c := &fakeCompleter{err: errors.New("inference endpoint unreachable")}
	p := NewInferencePlanner(c, "planner-model", nil)

	_, err := p.Plan(context.Background(), "open notepad")
	require.Error(t, err)
}

func TestInferencePlanner_RePlanIncludesFailureContext(t *testing.T) {
	c := &fakeCompleter{response: `[{"action":"WAIT","value":"1"}]`}
	p := NewInferencePlanner(c, "planner-model", nil)

	plan, err := p.RePlan(context.Background(), RePlanRequest{
		Goal:           "open notepad",
		FailedStep:     task.Step{Action: task.ActionClick, X: 10, Y: 20},
		VerifierDetail: "no window appeared",
		VisionContext:  "an empty desktop",
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.Contains(t, c.prompts[0], "no window appeared")
	require.Contains(t, c.prompts[0], "an empty desktop")
}
