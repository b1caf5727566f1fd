// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conflict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Escalation packages the conflicting claims plus evidence for one
// re-argument round with the qualitative engine.
type Escalation struct {
	SessionID string    `json:"session_id"`
	Round     int       `json:"round"`
	Conflicts []Verdict `json:"conflicts"`
	Claims    []Claim   `json:"claims"`
}

// Exchange is the request/response channel to the qualitative engine.
//
// The contract is transport-agnostic: the controller hands over an
// escalation and receives revised claims keyed by the original claim
// IDs. Returning no claims means the qualitative engine stands by its
// assertions.
type Exchange interface {
	// Rebut sends the escalation and returns the revised claims.
	Rebut(ctx context.Context, esc *Escalation) ([]Claim, error)
}

// rebuttalResponse is the wire shape of the qualitative engine's reply.
type rebuttalResponse struct {
	Claims []Claim `json:"claims"`
}

// DefaultRebuttalPath is the qualitative engine endpoint escalations
// are posted to.
const DefaultRebuttalPath = "/v1/rebuttals"

// HTTPExchange posts escalations to the qualitative engine over HTTP.
//
// # Thread Safety
//
//	HTTPExchange is immutable after creation and safe for concurrent
//	use.
type HTTPExchange struct {
	httpClient *http.Client
	baseURL    string
	path       string
}

var _ Exchange = (*HTTPExchange)(nil)

// NewHTTPExchange creates an exchange against the given base URL.
//
// The client timeout is a hard ceiling on one rebuttal round; the
// per-call context may shorten it further. A zero timeout defaults to
// 60 seconds, an empty path to DefaultRebuttalPath.
func NewHTTPExchange(baseURL string, timeout time.Duration, path string) *HTTPExchange {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if path == "" {
		path = DefaultRebuttalPath
	}
	return &HTTPExchange{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		path:       path,
	}
}

// Rebut implements the Exchange interface.
func (e *HTTPExchange) Rebut(ctx context.Context, esc *Escalation) ([]Claim, error) {
	body, err := json.Marshal(esc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal escalation: %w", err)
	}

	url := e.baseURL + e.path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rebuttal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Posting escalation to qualitative engine",
		"session_id", esc.SessionID, "round", esc.Round, "conflicts", len(esc.Conflicts))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rebuttal call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rebuttal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Qualitative engine rejected escalation",
			"status_code", resp.StatusCode, "response", string(respBody))
		return nil, fmt.Errorf("rebuttal failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed rebuttalResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rebuttal response: %w", err)
	}
	return parsed.Claims, nil
}
