package agent

import (
	"context"
	"fmt"
)

// Visioner is the subset of inference.Client the vision collaborator needs.
type Visioner interface {
	Vision(ctx context.Context, model, prompt, imageB64 string) (string, error)
}

// ScreenCapturer captures the current screen as a base64-encoded image. The
// capture mechanism itself (platform screenshot API) is an external
// collaborator, specified only at this interface.
type ScreenCapturer interface {
	Capture(ctx context.Context) (string, error)
}

// InferenceVision is the Vision collaborator: it captures the screen and
// asks the vision model to describe it.
type InferenceVision struct {
	client  Visioner
	model   string
	capture ScreenCapturer
}

func NewInferenceVision(client Visioner, model string, capture ScreenCapturer) *InferenceVision {
	return &InferenceVision{client: client, model: model, capture: capture}
}

func (v *InferenceVision) Describe(ctx context.Context) (string, error) {
	image, err := v.capture.Capture(ctx)
	if err != nil {
		return "", fmt.Errorf("vision: capture screen: %w", err)
	}

	desc, err := v.client.Vision(ctx, v.model, "Describe what is currently visible on screen.", image)
	if err != nil {
		return "", fmt.Errorf("vision: %w", err)
	}
	return desc, nil
}

// Check asks the vision model to decide whether expectation holds and
// returns its raw textual answer; the caller (e.g. the verifier) maps that
// answer to a verdict.
func (v *InferenceVision) Check(ctx context.Context, expectation string) (string, error) {
	image, err := v.capture.Capture(ctx)
	if err != nil {
		return "", fmt.Errorf("vision: capture screen: %w", err)
	}

	prompt := fmt.Sprintf("Does the following expectation hold on the current screen? Answer YES or NO with a short reason.\nExpectation: %s", expectation)
	answer, err := v.client.Vision(ctx, v.model, prompt, image)
	if err != nil {
		return "", fmt.Errorf("vision: %w", err)
	}
	return answer, nil
}
