package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"cohere-bridge/internal/config"
)

const (
	contentTypeJSON = "application/json"
	chatPath        = "/chat"

	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// ErrEmptyCredential indicates a chat call was attempted without a credential.
var ErrEmptyCredential = errors.New("upstream credential must not be empty")

// Client calls the upstream chat endpoint.
type Client struct {
	chatURL   string
	userAgent string
	client    *http.Client
}

// NewClient creates a client for the configured upstream.
func NewClient(cfg config.UpstreamConfig, client *http.Client) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Client{
		chatURL:   baseURL + chatPath,
		userAgent: cfg.UserAgent,
		client:    client,
	}, nil
}

// NewHTTPClient builds the transport used for upstream calls. The timeout
// bounds the wait for response headers only, so long streams are not cut off.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}

	return &http.Client{
		Transport: transport,
	}
}

// Chat sends req upstream with the caller's credential and returns the raw
// response. The caller owns the response body.
func (c *Client) Chat(ctx context.Context, req ChatRequest, credential string) (*http.Response, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, ErrEmptyCredential
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Authorization", credential)
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream chat request failed: %w", err)
	}
	return resp, nil
}
