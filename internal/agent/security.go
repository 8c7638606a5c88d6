package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/remotepilot/daemon/internal/task"
)

// denylistPatterns match the stage-1 regex denylist of §4.6. Compiled once
// at package init; case-insensitivity is baked into each pattern.
var denylistPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf`),
	regexp.MustCompile(`(?i)del\s+/s`),
	regexp.MustCompile(`(?i)rd\s+/s`),
	regexp.MustCompile(`(?i)\bformat\b`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`(?i)\bsudo\s`),
	regexp.MustCompile(`(?i)dd\s+if=`),
	regexp.MustCompile(`(?i):\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), // fork bomb literal
}

// Classifier is the subset of inference.Client stage 2 needs.
type Classifier interface {
	Complete(ctx context.Context, model, prompt string, jsonMode bool) (string, error)
}

// TwoStageSecurity screens a plan with a regex denylist (stage 1) and an
// optional inference-backed classification for plans containing a COMMAND
// step (stage 2).
type TwoStageSecurity struct {
	classifier   Classifier
	model        string
	enableStage2 bool
}

// NewTwoStageSecurity constructs the security screen. When enableStage2 is
// false, or classifier is nil, only the stage-1 denylist runs.
func NewTwoStageSecurity(classifier Classifier, model string, enableStage2 bool) *TwoStageSecurity {
	return &TwoStageSecurity{classifier: classifier, model: model, enableStage2: enableStage2}
}

func (s *TwoStageSecurity) Screen(ctx context.Context, plan task.Plan) (SecurityResult, error) {
	var concatenated strings.Builder
	hasCommand := false
	for _, step := range plan {
		concatenated.WriteString(step.Value)
		concatenated.WriteString("\n")
		if step.Action == task.ActionCommand {
			hasCommand = true
		}
	}
	combined := concatenated.String()

	for _, step := range plan {
		if reason, blocked := matchDenylist(step.Value); blocked {
			return SecurityResult{Status: SecurityBlocked, Reason: reason}, nil
		}
	}
	if reason, blocked := matchDenylist(combined); blocked {
		return SecurityResult{Status: SecurityBlocked, Reason: reason}, nil
	}

	if !hasCommand || !s.enableStage2 || s.classifier == nil {
		return SecurityResult{Status: SecuritySafe}, nil
	}

	verdict, err := s.classifier.Complete(ctx, s.model,
		fmt.Sprintf("Classify the following shell content as SAFE or MALICIOUS. Respond with one word.\n\n%s", combined), false)
	if err != nil {
		// Fail-open: stage 1 already passed.
		return SecurityResult{Status: SecuritySafe}, nil
	}
	if strings.Contains(strings.ToUpper(verdict), "MALICIOUS") {
		return SecurityResult{Status: SecurityBlocked, Reason: "stage-2 classifier flagged content as malicious"}, nil
	}
	return SecurityResult{Status: SecuritySafe}, nil
}

func matchDenylist(s string) (string, bool) {
	for _, re := range denylistPatterns {
		if re.MatchString(s) {
			return fmt.Sprintf("matched denylisted pattern %q", re.String()), true
		}
	}
	return "", false
}
