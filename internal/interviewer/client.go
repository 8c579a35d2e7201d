package interviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable covers every transport or protocol failure talking to the
// interviewer: unreachable host, undecodable body, missing fields.
var ErrUnavailable = errors.New("interviewer unavailable")

const (
	interviewPath       = "/interview"
	maxResponseBodySize = 1 << 20 // 1MB
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	// Timeout bounds a single call. Zero means no client-side timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls POST {baseURL}/interview.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	logger   *slog.Logger
}

// NewClient validates the base URL and builds a client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("interviewer base URL is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse interviewer base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("interviewer base URL must be http or https, got %q", base)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("interviewer base URL has no host: %q", base)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		endpoint: strings.TrimRight(base, "/") + interviewPath,
		timeout:  cfg.Timeout,
		http:     httpClient,
		logger:   logger,
	}, nil
}

// Endpoint returns the full interview URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Next sends the transcript and returns the interviewer's reply. The status
// code is not inspected: any body carrying the required fields is accepted.
func (c *Client) Next(ctx context.Context, req Request) (*Reply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, status, err := c.do(ctx, req)
	latency := time.Since(start)
	if err != nil {
		c.logger.Warn("Interviewer call failed",
			"endpoint", c.endpoint,
			"history_len", len(req.History),
			"question_index", req.QuestionIndex,
			"status", status,
			"latency", latency,
			"error", err,
		)
		return nil, err
	}

	c.logger.Info("Interviewer replied",
		"history_len", len(req.History),
		"question_index", req.QuestionIndex,
		"next_question_index", reply.NextIndex,
		"status", status,
		"latency", latency,
	)
	return reply, nil
}

func (c *Client) do(ctx context.Context, req Request) (*Reply, int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Failed to close interviewer response body", "error", closeErr)
		}
	}()

	var wire wireReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&wire); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: decode response (status %d): %v", ErrUnavailable, resp.StatusCode, err)
	}
	if wire.Response == nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: response field missing (status %d)", ErrUnavailable, resp.StatusCode)
	}
	if wire.NextQuestionIndex == nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: next_question_index field missing (status %d)", ErrUnavailable, resp.StatusCode)
	}

	return &Reply{
		Text:      *wire.Response,
		NextIndex: *wire.NextQuestionIndex,
		Concluded: wire.Concluded,
	}, resp.StatusCode, nil
}
