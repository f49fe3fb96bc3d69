// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrDaemonNotRunning indicates the ballast daemon refused the connection.
var ErrDaemonNotRunning = errors.New("ballast daemon is not running (connection refused)")

// defaultHTTPClient is the package-level HTTP client used by daemon commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// daemonClient provides HTTP access to a running ballast daemon.
type daemonClient struct {
	baseURL string
	http    *http.Client
}

// newDaemonClient creates a client targeting the given host:port address.
func newDaemonClient(addr string) *daemonClient {
	return &daemonClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
// Returns ErrDaemonNotRunning on connection refused.
func (c *daemonClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

// postJSON performs a POST with no request body and decodes the JSON
// response into dest. The returned status code lets callers react to
// non-200 outcomes such as a recovery conflict.
func (c *daemonClient) postJSON(path string, dest any) (int, error) {
	resp, err := c.http.Post(c.baseURL+path, "application/json", nil)
	if err != nil {
		if isDialError(err) {
			return 0, ErrDaemonNotRunning
		}
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if dest != nil && len(body) > 0 {
		if err := json.Unmarshal(body, dest); err != nil {
			return resp.StatusCode, fmt.Errorf("invalid response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
