// Package task defines the wire shapes shared by the planner, the action
// dispatcher, and the lifecycle engine: steps, plans, and task records.
package task

import (
	"encoding/json"
	"fmt"
)

// Action is one of the seven entries in the action catalog.
type Action string

const (
	ActionCommand      Action = "COMMAND"
	ActionType         Action = "TYPE"
	ActionHotkey       Action = "HOTKEY"
	ActionClick        Action = "CLICK"
	ActionWait         Action = "WAIT"
	ActionBrowse       Action = "BROWSE"
	ActionClickBrowser Action = "CLICK_BROWSER"
)

// Step is one atomic instruction produced by the planner. Every step must
// carry an Action tag from the closed set above; unrecognized tags are
// treated as a parse failure by the action dispatcher.
type Step struct {
	Action   Action  `json:"action"`
	Value    string  `json:"value,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Selector string  `json:"selector,omitempty"`
	URL      string  `json:"url,omitempty"`
}

// Plan is an ordered sequence of steps. Replaced wholesale on re-plan.
type Plan []Step

// ParsePlan decodes a planner response into a Plan, tolerating the three
// shapes the model may return: {"plan": [...]}, a bare sequence, or a single
// step mapping (wrapped as a one-element sequence).
func ParsePlan(raw []byte) (Plan, error) {
	var wrapped struct {
		Plan json.RawMessage `json:"plan"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Plan) > 0 {
		return parsePlanBody(wrapped.Plan)
	}
	return parsePlanBody(raw)
}

// parsePlanBody handles the un-wrapped body: either a JSON array of steps or
// a single step object.
func parsePlanBody(raw []byte) (Plan, error) {
	var steps []Step
	if err := json.Unmarshal(raw, &steps); err == nil {
		return Plan(steps), nil
	}

	var single Step
	if err := json.Unmarshal(raw, &single); err == nil && single.Action != "" {
		return Plan{single}, nil
	}

	return nil, fmt.Errorf("parse plan: response is neither a step sequence nor a single step: %s", truncate(raw, 200))
}

func truncate(raw []byte, n int) string {
	s := string(raw)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
