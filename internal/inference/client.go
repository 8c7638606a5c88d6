// Package inference is a typed client for the locally hosted, Ollama-compatible
// inference server used by every collaborator role (planner, vision, security,
// research, memory embeddings).
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client issues typed completion, vision, and embedding requests against a
// single inference endpoint. All calls accept a context and are cancellable:
// cancelling the context aborts the in-flight HTTP round trip.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a client bound to the given inference endpoint (e.g.
// "http://localhost:11434"). timeout bounds every call; a deadline on the
// caller's context applies as well, and whichever expires first wins.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout:   timeout,
			Transport: &validatingTransport{inner: http.DefaultTransport, endpoint: endpoint},
		},
	}
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
	Format string   `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Complete requests a text completion from model. When jsonMode is set, the
// backend is asked to constrain its output to valid JSON (format: "json").
func (c *Client) Complete(ctx context.Context, model, prompt string, jsonMode bool) (string, error) {
	req := generateRequest{Model: model, Prompt: prompt, Stream: false}
	if jsonMode {
		req.Format = "json"
	}
	var resp generateResponse
	if err := c.post(ctx, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Vision requests a completion over an image. imageB64 is the raw base64
// encoding of the image bytes (no data: URL prefix).
func (c *Client) Vision(ctx context.Context, model, prompt, imageB64 string) (string, error) {
	req := generateRequest{Model: model, Prompt: prompt, Images: []string{imageB64}, Stream: false}
	var resp generateResponse
	if err := c.post(ctx, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests an embedding vector for text.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	req := embeddingsRequest{Model: model, Prompt: text}
	var resp embeddingsResponse
	if err := c.post(ctx, "/api/embeddings", req, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Tags lists the models currently available on the inference server. The
// lifecycle engine's MODEL_CHECK state does not call it.
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp tagsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
