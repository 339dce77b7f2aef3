// Package apiclient is the JSON-over-HTTP transport shared by the commerce
// backend, shipping and payment gateway clients.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout-core/internal/logger"

	"go.uber.org/zap"
)

// TokenSource yields the bearer token for a request. An empty token sends no
// Authorization header.
type TokenSource func(ctx context.Context) (string, error)

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	name       string
}

type Option func(*Client)

// WithToken sets the bearer token source.
func WithToken(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithHTTPClient replaces the underlying http.Client (tests swap the Transport).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithName labels log lines, e.g. "cart-backend" or "gateway".
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		name:       "api",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// HTTPClient exposes the underlying client so tests can install a Transport.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// Do sends body (JSON encoded when non-nil) to baseURL+path and decodes a
// 2xx response into out when out is non-nil. Numbers decoded into interface
// values are json.Number.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	log := logger.FromCtx(ctx).With(
		zap.String("client", c.name),
		zap.String("method", method),
		zap.String("path", path),
	)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			log.Error("failed to marshal request body", zap.Error(err))
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		log.Error("failed creating request", zap.Error(err))
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("request failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("failed to read response body", zap.Error(err))
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", respBody),
		)
		return &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		log.Error("failed decoding response", zap.Error(err))
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
