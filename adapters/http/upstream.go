package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/artpar/metergate/ports"
)

// UpstreamClient forwards chat completion bodies to the model backend.
type UpstreamClient struct {
	client  *http.Client
	baseURL *url.URL
}

// UpstreamConfig contains configuration for the upstream client.
type UpstreamConfig struct {
	BaseURL         string
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// NewUpstreamClient creates a new upstream HTTP client.
func NewUpstreamClient(cfg UpstreamConfig) (*UpstreamClient, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}
	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	return &UpstreamClient{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConns,
				IdleConnTimeout:     idleConnTimeout,
			},
			Timeout: timeout,
		},
		baseURL: baseURL,
	}, nil
}

// Complete sends the chat body to the upstream and returns the raw
// response body and status code.
func (u *UpstreamClient) Complete(ctx context.Context, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20)) // 50MB limit
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// HealthCheck verifies the upstream is reachable.
// Any response (even 404) means it is.
func (u *UpstreamClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.baseURL.String(), nil)
	if err != nil {
		return err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Close releases idle connections.
func (u *UpstreamClient) Close() error {
	u.client.CloseIdleConnections()
	return nil
}

// Ensure interface compliance.
var _ ports.ChatUpstream = (*UpstreamClient)(nil)

// EchoUpstream is a stub backend for local development: it answers
// every chat request with a fixed completion whose token counts derive
// from the request size.
type EchoUpstream struct{}

// Complete returns a canned completion response.
func (EchoUpstream) Complete(ctx context.Context, body []byte) ([]byte, int, error) {
	promptTokens := int64(len(body) / 4)
	resp := fmt.Sprintf(`{"id":"echo","choices":[{"message":{"role":"assistant","content":"ok"}}],"usage":{"prompt_tokens":%d,"completion_tokens":1,"total_tokens":%d}}`,
		promptTokens, promptTokens+1)
	return []byte(resp), http.StatusOK, nil
}

// HealthCheck always succeeds.
func (EchoUpstream) HealthCheck(ctx context.Context) error { return nil }

// Ensure interface compliance.
var _ ports.ChatUpstream = EchoUpstream{}
