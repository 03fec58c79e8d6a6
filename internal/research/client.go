// Package research provides a client for the deep research API. A single
// research call can run for many minutes, so the request timeout scales with
// the requested breadth and depth.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MinTimeout is the floor for a research request regardless of parameters.
const MinTimeout = 5 * time.Minute

// DefaultBreadth and DefaultDepth are the production research parameters.
const (
	DefaultBreadth = 6
	DefaultDepth   = 4
)

// Error represents an error from the research API.
type Error struct {
	Message string
	Code    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("research error: %s (code: %s)", e.Message, e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("research error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("research error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// request is the wire format of a research query.
type request struct {
	Query   string `json:"query"`
	Breadth int    `json:"breadth"`
	Depth   int    `json:"depth"`
}

// response is the wire format of a research result.
type response struct {
	Success  bool           `json:"success"`
	Answer   string         `json:"answer"`
	Error    string         `json:"error"`
	Code     string         `json:"code"`
	Metadata map[string]any `json:"metadata"`
}

// Client calls the deep research API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a research client for the given base URL.
// The HTTP client's timeout is set per request based on breadth and depth.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Timeout returns the request timeout for the given research parameters:
// at least MinTimeout, or one minute per unit of breadth times depth.
func Timeout(breadth, depth int) time.Duration {
	scaled := time.Duration(breadth*depth) * time.Minute
	if scaled < MinTimeout {
		return MinTimeout
	}
	return scaled
}

// Run executes a research query and returns the markdown answer.
// An unsuccessful API response, an empty answer, or a non-JSON body are
// all reported as errors.
func (c *Client) Run(ctx context.Context, query string, breadth, depth int) (string, error) {
	payload, err := json.Marshal(request{Query: query, Breadth: breadth, Depth: depth})
	if err != nil {
		return "", &Error{Message: "failed to encode request", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout(breadth, depth))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/research", bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Close = true

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Message: "failed to read response body", Cause: err}
	}
	if len(body) == 0 {
		return "", &Error{Message: "empty response from server"}
	}

	var result response
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &Error{Message: "failed to parse response", Cause: err}
	}

	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "unknown error"
		}
		return "", &Error{Message: msg, Code: result.Code}
	}
	if result.Answer == "" {
		return "", &Error{Message: "success response with no answer"}
	}

	return result.Answer, nil
}

// Healthy reports whether the research API answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Status == "healthy"
}
