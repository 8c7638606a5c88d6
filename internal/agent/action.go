package agent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/remotepilot/daemon/internal/task"
)

// Input is the external collaborator that moves the mouse, clicks, types,
// and presses key combinations on the local machine. Specified only at this
// interface (§1 Out of scope: screen capture and input injection libraries).
type Input interface {
	Click(ctx context.Context, x, y float64) error
	Type(ctx context.Context, text string) error
	Hotkey(ctx context.Context, keys []string) error
}

// Browser is the shared, lazily-initialized browser automation context.
// Access must be serialized so two tasks cannot interleave page
// navigations (§5 Shared resources).
type Browser interface {
	Open(ctx context.Context, url string) (bodyText string, err error)
	Click(ctx context.Context, selector string) error
}

// Dispatcher is the Action collaborator: a dispatch table keyed by the
// step's action tag.
type Dispatcher struct {
	input         Input
	browser       Browser
	truncateChars int
}

// NewDispatcher constructs the Action dispatcher. truncateChars bounds the
// BROWSE content returned to the lifecycle engine.
func NewDispatcher(input Input, browser Browser, truncateChars int) *Dispatcher {
	if truncateChars <= 0 {
		truncateChars = 4000
	}
	return &Dispatcher{input: input, browser: browser, truncateChars: truncateChars}
}

func (d *Dispatcher) Execute(ctx context.Context, step task.Step) (ActionResult, error) {
	switch step.Action {
	case task.ActionCommand:
		return d.execCommand(ctx, step)
	case task.ActionType:
		return ActionResult{}, d.input.Type(ctx, step.Value)
	case task.ActionHotkey:
		return ActionResult{}, d.input.Hotkey(ctx, strings.Split(step.Value, "+"))
	case task.ActionClick:
		x, y, err := clickCoords(step)
		if err != nil {
			return ActionResult{}, fmt.Errorf("action CLICK: %w", err)
		}
		return ActionResult{}, d.input.Click(ctx, x, y)
	case task.ActionWait:
		return ActionResult{}, d.wait(ctx, step.Value)
	case task.ActionBrowse:
		return d.browse(ctx, step)
	case task.ActionClickBrowser:
		return ActionResult{}, d.browser.Click(ctx, step.Selector)
	default:
		return ActionResult{}, fmt.Errorf("action: unrecognized action tag %q", step.Action)
	}
}

func clickCoords(step task.Step) (x, y float64, err error) {
	if step.X != 0 || step.Y != 0 {
		return step.X, step.Y, nil
	}
	parts := strings.Fields(step.Value)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected \"x y\" in value, got %q", step.Value)
	}
	x, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse x: %w", err)
	}
	y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse y: %w", err)
	}
	return x, y, nil
}

func (d *Dispatcher) wait(ctx context.Context, value string) error {
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("action WAIT: parse seconds: %w", err)
	}
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) browse(ctx context.Context, step task.Step) (ActionResult, error) {
	url := step.URL
	if url == "" {
		url = step.Value
	}
	body, err := d.browser.Open(ctx, url)
	if err != nil {
		return ActionResult{}, fmt.Errorf("action BROWSE: %w", err)
	}
	if len(body) > d.truncateChars {
		body = body[:d.truncateChars]
	}
	return ActionResult{Content: body}, nil
}

func (d *Dispatcher) execCommand(ctx context.Context, step task.Step) (ActionResult, error) {
	slog.Info("action: executing command", "command", step.Value)

	cmd := exec.CommandContext(ctx, "sh", "-c", step.Value)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ActionResult{}, ctx.Err()
		}
		if _, ok := err.(*exec.ExitError); ok {
			// Non-zero exit surfaces as a mapping, not an error (§4.4, §7):
			// the caller's Verifier decides whether this counts as failure.
			return ActionResult{Content: stdout.String() + stderr.String()}, nil
		}
		return ActionResult{}, fmt.Errorf("action COMMAND: %w", err)
	}
	return ActionResult{Content: stdout.String()}, nil
}
