// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// PromptRequest is the body of POST /chat.
type PromptRequest struct {
	Prompt string `json:"prompt"`
	ConvID string `json:"conv_id"`

	// Profile and Registry select a backend profile. Blank values are omitted.
	Profile  string `json:"profile,omitempty"`
	Registry string `json:"registry,omitempty"`
}

// SubmitPrompt posts a prompt to a conversation. The reply arrives on the
// conversation's event stream, not in the response.
//
// Failures are returned as *HTTPError with [StageSend].
func (c *Client) SubmitPrompt(ctx context.Context, req PromptRequest) error {
	req.Profile = strings.TrimSpace(req.Profile)
	req.Registry = strings.TrimSpace(req.Registry)

	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/chat",
		body:   req,
		stage:  StageSend,
		what:   "chat request",
	})
	return err
}

// FetchTimelineSnapshot returns the raw body of GET /api/timeline for a
// conversation. Decoding is left to the SEM codec.
//
// Failures are returned as *HTTPError with [StageHydrate].
func (c *Client) FetchTimelineSnapshot(ctx context.Context, convID string) (json.RawMessage, error) {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/timeline?conv_id=" + url.QueryEscape(convID),
		stage:  StageHydrate,
		what:   "timeline request",
	})
}
