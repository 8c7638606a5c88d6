// Package lifecycle implements the per-task state machine described in
// §4.1: the engine that drives a goal from submission through planning,
// safety screening, bounded retry execution with visual verification and
// re-planning, to a terminal DONE or FAILED.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/remotepilot/daemon/internal/agent"
	"github.com/remotepilot/daemon/internal/events"
	"github.com/remotepilot/daemon/internal/registry"
	"github.com/remotepilot/daemon/internal/task"
)

// ReasonCancelled is the terminal reason recorded when a task is cancelled
// mid-flight (§7, §8 scenario 6).
const ReasonCancelled = "CANCELLED"

// ReasonReplansExhausted is the terminal reason recorded when a task hits
// max_replans without a verified plan (§4.1 step 6).
const ReasonReplansExhausted = "max re-plans exceeded"

// AbortRecorder receives one notification per task cancelled mid-flight, for
// the host metrics abort_status counter (§3, §6).
type AbortRecorder interface {
	RecordAbort()
}

// Config holds the lifecycle engine's tunables (§3 Configuration).
type Config struct {
	MaxReplans        int
	PlanCallTimeout   time.Duration
	StepVerifyTimeout time.Duration
}

// Engine is the composition root for the task lifecycle: it owns the Task
// Registry and the collaborator handles, and spawns one worker goroutine
// per submitted task (§5 Scheduling model).
type Engine struct {
	registry *registry.Registry
	planner  agent.Planner
	vision   agent.Vision
	action   agent.Action
	verifier agent.Verifier
	security agent.Security
	research agent.Research
	memory   agent.Memory
	abort    AbortRecorder
	cfg      Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Deps bundles the collaborator handles injected into the engine (§9
// "Process-wide singletons → explicit injection"). Abort is optional: when
// nil, cancellations are not counted.
type Deps struct {
	Registry *registry.Registry
	Planner  agent.Planner
	Vision   agent.Vision
	Action   agent.Action
	Verifier agent.Verifier
	Security agent.Security
	Research agent.Research
	Memory   agent.Memory
	Abort    AbortRecorder
}

// New constructs an Engine from its dependencies and configuration.
func New(deps Deps, cfg Config) *Engine {
	if cfg.MaxReplans <= 0 {
		cfg.MaxReplans = 10
	}
	return &Engine{
		registry: deps.Registry,
		planner:  deps.Planner,
		vision:   deps.Vision,
		action:   deps.Action,
		verifier: deps.Verifier,
		security: deps.Security,
		research: deps.Research,
		memory:   deps.Memory,
		abort:    deps.Abort,
		cfg:      cfg,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit allocates a task record in IDLE and spawns its worker. It never
// blocks on the work itself.
func (e *Engine) Submit(goal string) string {
	id := e.registry.Create(goal)

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()

	go e.run(ctx, id, goal)
	return id
}

// Get returns the current snapshot of a task.
func (e *Engine) Get(id string) (task.Snapshot, error) {
	return e.registry.Get(id)
}

// Subscribe attaches a new subscriber to a task's event stream.
func (e *Engine) Subscribe(id string) (<-chan events.Event, func()) {
	return e.registry.Subscribe(id)
}

// ErrNotFound is returned by Cancel when the task id is unknown.
var ErrNotFound = registry.ErrNotFound

// Cancel marks a task's worker for abort. The worker transitions to FAILED
// with ReasonCancelled at its next cooperative check point.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	cancel()
	return nil
}

func (e *Engine) forgetCancel(id string) {
	e.mu.Lock()
	delete(e.cancels, id)
	e.mu.Unlock()
}

// run is the worker goroutine bound to one task. It implements the core
// algorithm of §4.1 end to end.
func (e *Engine) run(ctx context.Context, id, goal string) {
	defer e.forgetCancel(id)

	if e.checkCancelled(ctx, id) {
		return
	}

	e.registry.SetState(id, task.StatePlanning)
	plan, err := e.callPlan(ctx, goal)
	if err != nil {
		if e.checkCancelled(ctx, id) {
			return
		}
		e.fail(id, fmt.Sprintf("planner error: %v", err))
		return
	}

	e.registry.SetPlan(id, plan)

	if !e.secure(ctx, id, plan) {
		return
	}
	if e.checkCancelled(ctx, id) {
		return
	}

	e.registry.SetState(id, task.StateModelCheck)
	if e.checkCancelled(ctx, id) {
		return
	}
	e.registry.SetState(id, task.StateSandboxSetup)
	if e.checkCancelled(ctx, id) {
		return
	}

	stepIndex := 0
	retryCount := 0
	var researchFragments []string

	for stepIndex < len(plan) && retryCount < e.cfg.MaxReplans {
		if e.checkCancelled(ctx, id) {
			return
		}

		e.registry.SetState(id, task.StateAct)
		step := plan[stepIndex]
		result, actErr := e.action.Execute(ctx, step)
		if e.checkCancelled(ctx, id) {
			return
		}
		if actErr != nil {
			e.registry.Log(id, "action", actErr.Error(), task.SeverityError)
		} else {
			e.registry.Log(id, "action", fmt.Sprintf("step %d: %s %s", stepIndex+1, step.Action, step.Value), task.SeverityInfo)
		}
		if result.Content != "" && step.Action == task.ActionBrowse {
			researchFragments = append(researchFragments, result.Content)
		}

		e.registry.SetState(id, task.StateVerify)
		if e.checkCancelled(ctx, id) {
			return
		}

		var verified bool
		var details string
		if actErr != nil {
			// A step that fails to execute/parse is treated as a
			// verification failure (§4.1 edge case b).
			verified, details = false, actErr.Error()
		} else {
			vr, verErr := e.callVerify(ctx, expectationFor(step))
			if e.checkCancelled(ctx, id) {
				return
			}
			if verErr != nil {
				// Verifier error is treated as verification negative,
				// conservatively (§7).
				verified, details = false, verErr.Error()
			} else {
				verified, details = vr.Verified, vr.Details
			}
		}

		if verified {
			e.registry.Log(id, "verifier", fmt.Sprintf("step %d verified: %s", stepIndex+1, details), task.SeverityInfo)
			stepIndex++
			retryCount = 0
			continue
		}

		retryCount++
		e.registry.Log(id, "verifier", fmt.Sprintf("step %d failed verification: %s", stepIndex+1, details), task.SeverityWarning)

		// The re-plan attempt runs even on the iteration that reaches
		// max_replans: the while-condition at the top of the loop is what
		// decides exhaustion (§4.1 step 5-6), not this increment.
		e.registry.SetState(id, task.StatePlanning)
		if e.checkCancelled(ctx, id) {
			return
		}

		visionCtx := ""
		if desc, visErr := e.vision.Describe(ctx); visErr == nil {
			visionCtx = desc
		}
		// A vision failure during re-plan proceeds with empty context
		// rather than failing the task (§4.1 edge case c).

		newPlan, replanErr := e.callRePlan(ctx, agent.RePlanRequest{
			Goal:           goal,
			FailedStep:     step,
			VerifierDetail: details,
			VisionContext:  visionCtx,
		})
		if e.checkCancelled(ctx, id) {
			return
		}
		if replanErr != nil {
			e.fail(id, fmt.Sprintf("re-plan error: %v", replanErr))
			return
		}

		plan = newPlan
		stepIndex = 0
		e.registry.SetPlan(id, plan)
		if !e.secure(ctx, id, plan) {
			return
		}
	}

	if retryCount >= e.cfg.MaxReplans {
		e.fail(id, ReasonReplansExhausted)
		return
	}

	if len(researchFragments) > 0 {
		summary, synErr := e.research.Synthesize(ctx, goal, researchFragments)
		if synErr != nil {
			slog.Warn("research synthesis failed", "task_id", id, "error", synErr)
		} else {
			e.registry.Log(id, "research", summary, task.SeverityInfo)
		}
	}

	if e.memory != nil {
		if err := e.memory.Add(ctx, goal, plan); err != nil {
			slog.Warn("memory write failed", "task_id", id, "error", err)
		}
	}

	e.registry.SetState(id, task.StateDone)
}

// secure screens a plan through Security and transitions to FAILED when
// blocked. Returns false when the task should not proceed further.
func (e *Engine) secure(ctx context.Context, id string, plan task.Plan) bool {
	result, err := e.security.Screen(ctx, plan)
	if err != nil {
		e.fail(id, fmt.Sprintf("security error: %v", err))
		return false
	}
	if result.Status == agent.SecurityBlocked {
		e.fail(id, result.Reason)
		return false
	}
	e.registry.Log(id, "security", fmt.Sprintf("Generated & Secured %d steps", len(plan)), task.SeverityInfo)
	return true
}

func (e *Engine) fail(id, reason string) {
	e.registry.Fail(id, reason)
	e.registry.SetState(id, task.StateFailed)
}

func (e *Engine) checkCancelled(ctx context.Context, id string) bool {
	if ctx.Err() == nil {
		return false
	}
	e.fail(id, ReasonCancelled)
	if e.abort != nil {
		e.abort.RecordAbort()
	}
	return true
}

func (e *Engine) callPlan(ctx context.Context, goal string) (task.Plan, error) {
	ctx, cancel := e.withTimeout(ctx, e.cfg.PlanCallTimeout)
	defer cancel()
	return e.planner.Plan(ctx, goal)
}

func (e *Engine) callRePlan(ctx context.Context, req agent.RePlanRequest) (task.Plan, error) {
	ctx, cancel := e.withTimeout(ctx, e.cfg.PlanCallTimeout)
	defer cancel()
	return e.planner.RePlan(ctx, req)
}

func (e *Engine) callVerify(ctx context.Context, expectation string) (agent.VerifyResult, error) {
	ctx, cancel := e.withTimeout(ctx, e.cfg.StepVerifyTimeout)
	defer cancel()
	return e.verifier.Verify(ctx, expectation)
}

func (e *Engine) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// expectationFor synthesizes the expectation string passed to the verifier
// from the just-executed step's action tag (§4.1 step 5).
func expectationFor(step task.Step) string {
	switch step.Action {
	case task.ActionCommand:
		return fmt.Sprintf("the command %q completed", step.Value)
	case task.ActionType:
		return fmt.Sprintf("the text %q was typed", step.Value)
	case task.ActionHotkey:
		return fmt.Sprintf("the key combination %q was pressed and took effect", step.Value)
	case task.ActionClick:
		return "the click at the target location registered"
	case task.ActionWait:
		return "the expected time has elapsed"
	case task.ActionBrowse:
		return fmt.Sprintf("the page %q loaded", step.URL)
	case task.ActionClickBrowser:
		return fmt.Sprintf("the element %q was clicked", step.Selector)
	default:
		return "the step completed"
	}
}
