package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes caps how much of a provider response is read. Provider
// output beyond this is truncated rather than buffered unbounded.
const maxResponseBytes = 4 << 20

// postJSON sends a JSON POST to url and decodes the JSON response into out.
// Non-2xx statuses and undecodable bodies are transport-level errors: the
// caller treats them as a failed candidate, not an authoritative result.
func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
	}

	if err := decodeBody(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}

// getJSON fetches url and decodes the JSON response into out.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}

	if err := decodeBody(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}

func decodeBody(r io.Reader, out any) error {
	return json.NewDecoder(io.LimitReader(r, maxResponseBytes)).Decode(out)
}
