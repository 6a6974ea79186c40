// Package client provides a Go client for a remote recipeflow API
// server.
//
// Usage:
//
//	c := client.New("https://recipeflow.example.com",
//	    client.WithUserID("alice"),
//	)
//
//	// Create a recipe and start an execution.
//	rcp, err := c.CreateRecipe(ctx, client.CreateRecipeRequest{
//	    Name:  "nightly-digest",
//	    Steps: steps,
//	})
//	exec, err := c.StartExecution(ctx, rcp.ID, nil)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// userHeader carries the caller identity, matching the API contract.
const userHeader = "X-User-Id"

// Client talks to a remote recipeflow API server over HTTP.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the API server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a structured error returned by the API server.
type APIError struct {
	Status  int    `json:"-"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("recipeflow: %s: %s", e.Kind, e.Message)
}

// IsNotFound reports whether err is an APIError with kind "not_found".
func IsNotFound(err error) bool { return hasKind(err, "not_found") }

// IsConflict reports whether err is an APIError with kind "conflict".
func IsConflict(err error) bool { return hasKind(err, "conflict") }

// IsValidation reports whether err is an APIError with kind "validation".
func IsValidation(err error) bool { return hasKind(err, "validation") }

func hasKind(err error, kind string) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Kind == kind
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/healthz", nil, nil, nil)
}

// FireEvent fires every enabled schedule bound to the named event
// trigger on the server.
func (c *Client) FireEvent(ctx context.Context, trigger string) error {
	return c.do(ctx, http.MethodPost, "/v1/events/"+url.PathEscape(trigger)+"/fire", nil, nil, nil)
}

// ── Internal plumbing ───────────────────────────────

// do sends one request and decodes the JSON response into out (when
// non-nil). Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(userHeader, c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	var wrapper struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil || wrapper.Error.Message == "" {
		return &APIError{
			Status:  resp.StatusCode,
			Kind:    "internal",
			Message: http.StatusText(resp.StatusCode),
		}
	}
	apiErr := wrapper.Error
	apiErr.Status = resp.StatusCode
	return &apiErr
}
