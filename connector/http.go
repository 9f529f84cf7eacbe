package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"darkmon/core"
)

// maxErrorBodyBytes bounds how much of a provider error body is kept for the
// classified error message
const maxErrorBodyBytes = 512

// doJSON performs req, decodes a 2xx JSON body into out, and converts any
// other status into an HTTPStatusError for classification. Connection-level
// failures are wrapped as core.ErrConnectionFailed.
func doJSON(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", core.ErrConnectionFailed, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse provider response: %w", err)
	}
	return nil
}

// jsonRequest builds a POST request with a JSON body
func jsonRequest(ctx context.Context, method, url string, payload interface{}) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
