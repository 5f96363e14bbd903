// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by daemon
// commands. Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// daemonClient provides HTTP access to a running aegis daemon.
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
func (c *daemonClient) getJSON(path string, dest interface{}) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return aegiserr.New(aegiserr.CodeCLIDaemonNotRunning, "daemon is not running (connection refused)")
		}
		return aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "daemon returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// postJSON performs a POST with no request body and decodes the JSON
// response into dest (skipped when dest is nil).
func (c *daemonClient) postJSON(path string, dest interface{}) error {
	resp, err := c.http.Post(c.baseURL+path, "application/json", nil)
	if err != nil {
		if isDialError(err) {
			return aegiserr.New(aegiserr.CodeCLIDaemonNotRunning, "daemon is not running (connection refused)")
		}
		return aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "daemon returned status %d: %s", resp.StatusCode, string(body))
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
