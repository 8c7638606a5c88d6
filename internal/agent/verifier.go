package agent

import (
	"context"
	"fmt"
	"strings"
)

// checker is the subset of InferenceVision the verifier needs: a
// vision-mediated yes/no check against the live screen.
type checker interface {
	Check(ctx context.Context, expectation string) (string, error)
}

// InferenceVerifier maps a Vision-mediated textual answer to a boolean via
// substring match on YES/TRUE (case-insensitive).
type InferenceVerifier struct {
	vision checker
}

func NewInferenceVerifier(vision checker) *InferenceVerifier {
	return &InferenceVerifier{vision: vision}
}

func (v *InferenceVerifier) Verify(ctx context.Context, expectation string) (VerifyResult, error) {
	answer, err := v.vision.Check(ctx, expectation)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verifier: %w", err)
	}

	upper := strings.ToUpper(answer)
	verified := strings.Contains(upper, "YES") || strings.Contains(upper, "TRUE")
	return VerifyResult{Verified: verified, Details: answer}, nil
}
