// Package client talks to a remote ingestion server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/resilience"
)

// ErrInvalidServerURL is returned by New for an unusable base URL.
var ErrInvalidServerURL = errors.New("invalid server url")

const (
	addPath  = "/api/addToQueue"
	nextPath = "/api/getNextChunk"

	maxErrorBody = 4 << 10
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	Retry resilience.RetryConfig

	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client is a remote queue reached over HTTP.
type Client struct {
	base    *url.URL
	timeout time.Duration
	retry   resilience.RetryConfig
	http    *http.Client
	logger  *log.Logger
}

// New creates a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServerURL, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidServerURL, cfg.BaseURL)
	}

	c := &Client{
		base:    base,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
		http:    cfg.HTTPClient,
		logger:  cfg.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.retry.MaxAttempts <= 0 {
		c.retry = resilience.DefaultRetryConfig()
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c, nil
}

type addResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type nextChunkResponse struct {
	Chunk *document.Chunk `json:"chunk,omitempty"`
}

// AddToQueue submits doc and reports whether the server accepted it. Every
// attempt carries the same idempotency key so retries never enqueue twice.
func (c *Client) AddToQueue(ctx context.Context, doc document.Document) (bool, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode document: %w", err)
	}
	key := uuid.NewString()

	var resp addResponse
	err = c.do(ctx, http.MethodPost, addPath, func(req *http.Request) {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
	}, body, &resp)
	if err != nil {
		return false, err
	}
	return resp.Success, nil
}

// GetNextChunk pulls the next chunk. It returns nil when the queue is empty.
// Retries reuse one idempotency key, so a pull the server answered after the
// client gave up on the attempt is replayed rather than lost.
func (c *Client) GetNextChunk(ctx context.Context) (*document.Chunk, error) {
	key := uuid.NewString()

	var resp nextChunkResponse
	err := c.do(ctx, http.MethodGet, nextPath, func(req *http.Request) {
		req.Header.Set("Idempotency-Key", key)
	}, nil, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Chunk == nil || resp.Chunk.Empty() {
		return nil, nil
	}
	return resp.Chunk, nil
}

func (c *Client) do(ctx context.Context, method, path string, prepare func(*http.Request), body []byte, out any) error {
	target := c.base.JoinPath(path).String()

	attempt := 0
	return resilience.Retry(ctx, c.retry, isRetryable, func(ctx context.Context) error {
		attempt++
		err := c.once(ctx, method, target, prepare, body, out)
		if err != nil && isRetryable(err) {
			c.logger.Debug("Request failed",
				"method", method,
				"url", target,
				"attempt", attempt,
				"error", err)
		}
		return err
	})
}

func (c *Client) once(ctx context.Context, method, target string, prepare func(*http.Request), body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if prepare != nil {
		prepare(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", target, err)
	}
	return nil
}

func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return resilience.IsRetryable(err)
}
