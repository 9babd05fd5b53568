// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client is a Go client for a SEM chat backend's HTTP endpoints.
//
// The chat backend streams conversation events over a WebSocket; this package
// covers the request/response side: submitting prompts, fetching timeline
// snapshots and managing chat profiles.
//
// # Getting Started
//
//	c := client.New("http://localhost:8080")
//
//	// Submit a prompt
//	err := c.SubmitPrompt(ctx, client.PromptRequest{Prompt: "hello", ConvID: "c1"})
//
//	// Fetch the materialized timeline
//	raw, err := c.FetchTimelineSnapshot(ctx, "c1")
//
//	// List profiles of a registry
//	profiles, err := c.Profiles.List(ctx, "default")
//
// The base URL may carry a path prefix ("https://host/app"); every endpoint
// is resolved below it.
//
// # Error Handling
//
// Non-2xx responses are returned as *HTTPError values carrying the status,
// the request stage and URL, and the trimmed response body as message:
//
//	if err := c.SubmitPrompt(ctx, req); err != nil {
//	    var httpErr *client.HTTPError
//	    if errors.As(err, &httpErr) {
//	        fmt.Printf("%s failed (%d): %s\n", httpErr.Stage, httpErr.Status, httpErr.Message)
//	    }
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a chat backend client.
//
// The Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Profiles manages chat profiles.
	Profiles *ProfileClient
}

// Option configures a [Client].
type Option func(*Client)

// New creates a client for the backend at baseURL. A trailing slash is
// removed. The default HTTP timeout is 30 seconds.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Profiles = &ProfileClient{c: c}
	return c
}

// WithHTTPClient sets a custom HTTP client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout for all requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// BaseURL returns the base URL of the backend.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stage says which kind of request failed.
type Stage string

const (
	StageSend    Stage = "send"
	StageHydrate Stage = "hydrate"
	StageProfile Stage = "profile"
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	// Status is the HTTP status code.
	Status int `json:"status"`

	// Stage is the request kind that failed.
	Stage Stage `json:"stage"`

	// URL is the requested URL.
	URL string `json:"url"`

	// Message is the trimmed response body, or a generic
	// "... failed (status)" text when the body was empty.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// errorMessage returns the trimmed body, or fallback when it is blank.
func errorMessage(body []byte, fallback string) string {
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return fallback
}

// request describes one call.
type request struct {
	method string
	path   string
	body   interface{}
	stage  Stage
	// what names the request in fallback error messages.
	what string
}

// do performs a request and returns the raw response body.
func (c *Client) do(ctx context.Context, r request) (json.RawMessage, error) {
	url := c.baseURL + r.path

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return parseResponse(resp, url, r)
}

// parseResponse reads the body and turns non-2xx statuses into *HTTPError.
func parseResponse(resp *http.Response, url string, r request) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Status:  resp.StatusCode,
			Stage:   r.stage,
			URL:     url,
			Message: errorMessage(respBody, fmt.Sprintf("%s failed (%d)", r.what, resp.StatusCode)),
		}
	}
	return respBody, nil
}

// decode unmarshals a successful response body.
func decode[T any](data json.RawMessage, what string) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to parse %s: %w", what, err)
	}
	return out, nil
}
