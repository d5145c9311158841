// Package allocator is the HTTP client for the external allocation service.
package allocator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/domain"
)

// maxResponseBytes caps how much of a backend response is read.
const maxResponseBytes = 4 << 20

// Client talks to {BACKEND_API}/allocate
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// Response is a successful backend answer. Raw is relayed to callers verbatim.
type Response struct {
	StatusCode int
	Raw        json.RawMessage
	Result     domain.AllocationResult
}

// UpstreamError describes a failed call to the backend.
type UpstreamError struct {
	StatusCode int    // 0 when no response was received
	Body       string // truncated response body, if any
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("allocation backend returned status %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("allocation backend returned status %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("allocation backend unreachable: %v", e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewClient creates a new allocation backend client
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "allocator").Logger(),
	}
}

// BaseURL returns the configured backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Allocate posts the request, in wire form, to the backend and returns its answer.
// Plans are sent as given; filtering disabled plans is the caller's job.
// Any transport failure, non-2xx status or non-JSON body yields *UpstreamError.
func (c *Client) Allocate(ctx context.Context, r domain.AllocationRequest) (*Response, error) {
	req := r.Wire()
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal allocation request: %w", err)
	}

	url := c.baseURL + "/allocate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build allocation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.log.Debug().
		Str("url", url).
		Int("plans", len(req.DepositPlans)).
		Int("deposits", len(req.Deposits)).
		Msg("Forwarding allocation request")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", truncate(string(body), 256)).
			Msg("Allocation backend returned an error")
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(string(body), 1024)}
	}

	if !json.Valid(body) {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 1024),
			Err:        fmt.Errorf("response is not valid JSON"),
		}
	}

	out := &Response{StatusCode: resp.StatusCode, Raw: json.RawMessage(body)}
	// The raw body is what gets relayed; a result we cannot parse is only logged.
	if err := json.Unmarshal(body, &out.Result); err != nil {
		c.log.Warn().Err(err).Msg("Allocation response does not match the expected shape")
	}

	c.log.Info().
		Int("status", resp.StatusCode).
		Int("portfolios", len(out.Result.FundAllocation)).
		Msg("Allocation backend responded")

	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
