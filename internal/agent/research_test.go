package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferenceResearch_Synthesize(t *testing.T) {
	c := &fakeCompleter{response: "Both pages describe the same product launch."}
	r := NewInferenceResearch(c, "research-model")

	summary, err := r.Synthesize(context.Background(), "research the launch", []string{"page one body", "page two body"})
	require.NoError(t, err)
	require.Equal(t, "Both pages describe the same product launch.", summary)
	require.Contains(t, c.prompts[0], "page one body")
	require.Contains(t, c.prompts[0], "page two body")
}
