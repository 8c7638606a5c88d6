// Package agent defines the narrow capability interfaces the lifecycle
// engine depends on — planner, vision, action, verifier, security, research
// — and their inference-backed implementations. The engine never depends on
// a concrete collaborator, only on these interfaces, so test harnesses can
// substitute stubs (§9 "Abstract-base agents → capability interfaces").
package agent

import (
	"context"

	"github.com/remotepilot/daemon/internal/task"
)

// Planner produces an initial plan for a goal, or a replacement plan after a
// verification failure.
type Planner interface {
	Plan(ctx context.Context, goal string) (task.Plan, error)
	RePlan(ctx context.Context, req RePlanRequest) (task.Plan, error)
}

// RePlanRequest carries the failure context fed back into the planner.
type RePlanRequest struct {
	Goal           string
	FailedStep     task.Step
	VerifierDetail string
	VisionContext  string
}

// Vision describes the current screen, used both by the verifier and to
// give the planner fresh context before a re-plan.
type Vision interface {
	Describe(ctx context.Context) (string, error)
}

// ActionResult is the outcome of dispatching one step.
type ActionResult struct {
	Content string // BROWSE: first N characters of page text; COMMAND: captured output
}

// Action executes one step against the local machine (shell, GUI, browser).
type Action interface {
	Execute(ctx context.Context, step task.Step) (ActionResult, error)
}

// VerifyResult is the outcome of checking a step's post-condition.
type VerifyResult struct {
	Verified bool
	Details  string
}

// Verifier checks, via Vision, whether an expectation holds on-screen.
type Verifier interface {
	Verify(ctx context.Context, expectation string) (VerifyResult, error)
}

// SecurityStatus is the verdict of the two-stage plan screen.
type SecurityStatus string

const (
	SecuritySafe    SecurityStatus = "SAFE"
	SecurityBlocked SecurityStatus = "BLOCKED"
)

// SecurityResult is the outcome of screening a plan.
type SecurityResult struct {
	Status SecurityStatus
	Reason string
}

// Security screens a plan before it is allowed to execute.
type Security interface {
	Screen(ctx context.Context, plan task.Plan) (SecurityResult, error)
}

// Research synthesizes a summary from the BROWSE fragments collected during
// a task's execution.
type Research interface {
	Synthesize(ctx context.Context, goal string, pages []string) (string, error)
}

// MemoryEntry is one retrieved (goal, plan) pair used as few-shot context.
type MemoryEntry struct {
	Goal string
	Plan task.Plan
}

// Memory is the semantic memory store consulted by the planner and written
// to on task success.
type Memory interface {
	Add(ctx context.Context, goal string, plan task.Plan) error
	Retrieve(ctx context.Context, goal string, topK int) ([]MemoryEntry, error)
}
