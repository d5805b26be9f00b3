package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrProvider wraps every failure reported by an embedding backend: transport
// errors, non-2xx responses, and responses with the wrong number of vectors.
var ErrProvider = errors.New("embedding provider failed")

// apiError extracts a provider error message from a decoded response body.
type apiError interface {
	message() string
}

// postJSON sends body to url and decodes the reply into out. Transport
// failures, non-2xx statuses and undecodable bodies are wrapped with
// ErrProvider; for non-2xx replies the provider's own message is preferred.
func postJSON(ctx context.Context, client *http.Client, backend, url string, header http.Header, body any, out apiError) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s embedder: marshal request: %w", backend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s embedder: create request: %w", backend, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s embedder: request failed: %v: %w", backend, err, ErrProvider)
	}
	defer resp.Body.Close()

	decodeErr := json.NewDecoder(resp.Body).Decode(out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil && out.message() != "" {
			msg = out.message()
		}
		return fmt.Errorf("%s embedder: %s: %w", backend, msg, ErrProvider)
	}
	if decodeErr != nil {
		return fmt.Errorf("%s embedder: decode response: %v: %w", backend, decodeErr, ErrProvider)
	}
	return nil
}

// checkVectors verifies one non-empty vector per input text.
func checkVectors(backend string, vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("%s embedder: expected %d embeddings, got %d: %w", backend, want, len(vecs), ErrProvider)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%s embedder: embedding %d is empty: %w", backend, i, ErrProvider)
		}
	}
	return nil
}
