package inference

import (
	"io"
	"net/http"
	"strings"
)

// validatingTransport wraps an http.RoundTripper to detect non-JSON error
// responses from the inference backend (e.g. a reverse proxy returning
// plain text such as "no available server" instead of propagating the
// model server's own JSON error body).
type validatingTransport struct {
	inner    http.RoundTripper
	endpoint string
}

func (t *validatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Endpoint: t.endpoint, Cause: err}
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ErrModelUnavailable{
			Endpoint: t.endpoint,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "ndjson") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ErrModelUnavailable{
			Endpoint: t.endpoint,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}
