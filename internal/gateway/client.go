// Package gateway is the HTTP client for the upstream lab-platform
// collections. Every endpoint answers with the platform envelope
// {code, message, result}: code 200 is success, any other code is a soft
// logical failure. Reads map soft failures to nil/empty and never return an
// error for them; writes report them as ErrRejected because the caller must
// know the write did not land. Transport failures and malformed bodies are
// real errors either way.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrRejected marks a write the platform answered with a non-200 envelope code.
var ErrRejected = errors.New("platform rejected request")

type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			// Callers bound individual calls with context timeouts; this is
			// only the safety net against a wedged connection.
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// call performs one round trip and decodes the envelope. ok=false with a nil
// error is a soft logical failure; out is left untouched in that case.
func (c *Client) call(ctx context.Context, method, path string, body any, out any) (bool, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return false, err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return false, fmt.Errorf("platform %s %s: http %d", method, path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return false, fmt.Errorf("platform %s %s: malformed envelope: %w", method, path, err)
	}
	if env.Code != http.StatusOK {
		c.logger.Debug("platform soft failure",
			"method", method,
			"path", path,
			"code", env.Code,
			"message", env.Message,
		)
		return false, nil
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return false, fmt.Errorf("platform %s %s: malformed result: %w", method, path, err)
		}
	}
	return true, nil
}

func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

// write is the helper for mutating calls: a soft failure becomes ErrRejected.
func (c *Client) write(ctx context.Context, method, path string, body any, out any) error {
	ok, err := c.call(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrRejected, method, path)
	}
	return nil
}

// Ping is the readiness probe against the platform's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform health: http %d", resp.StatusCode)
	}
	return nil
}

func ReadyCheck(c *Client) func(context.Context) error {
	return c.Ping
}
