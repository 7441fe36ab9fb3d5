// Package license implements the LicenseClient port against the remote
// license authority's REST endpoints.
package license

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

	"github.com/gregjones/httpcache"

	"github.com/analyticspro/walletlens/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LicenseClient = (*Client)(nil)

const requestTimeout = 10 * time.Second

// Client calls the license authority over HTTP. The transport stack wraps the
// default transport with an in-memory ETag cache so repeated heartbeat
// validations of an unchanged token stay cheap.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client for the given authority base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		http: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   requestTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client,
// intended for tests injecting an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// verifyRequest is the direct-exchange request body.
type verifyRequest struct {
	Email      string `json:"email"`
	LicenseKey string `json:"license_key"`
}

// verifyResponse is the authority's answer to /verify.
type verifyResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// validateResponse is the authority's answer to /validate-token. Valid is a
// pointer so a body without the field reads as not-confirmed rather than a
// zero-value pass.
type validateResponse struct {
	Valid *bool `json:"valid"`
}

// Verify exchanges email + license key for a session token.
func (c *Client) Verify(ctx context.Context, email, licenseKey string) (*driven.VerifyResult, error) {
	body, err := json.Marshal(verifyRequest{Email: email, LicenseKey: licenseKey})
	if err != nil {
		return nil, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The authority sits behind a tunneling proxy that interposes a browser
	// warning page unless asked not to.
	req.Header.Set("ngrok-skip-browser-warning", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}

	return &driven.VerifyResult{
		Success: parsed.Success,
		Token:   parsed.Token,
		Message: parsed.Message,
	}, nil
}

// ValidateToken asks the authority whether the token is still authorized.
// Only a success status with an explicit valid:true confirms the session; a
// rejection or malformed body is (false, nil) and a transport failure is
// (false, err) so the caller's policy applies.
func (c *Client) ValidateToken(ctx context.Context, token string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/validate-token", nil)
	if err != nil {
		return false, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("ngrok-skip-browser-warning", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("validate request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("token validation rejected", "status", resp.StatusCode)
		return false, nil
	}

	var parsed validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		slog.Warn("token validation body malformed", "error", err)
		return false, nil
	}

	return parsed.Valid != nil && *parsed.Valid, nil
}
