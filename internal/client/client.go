// Package client is the agent's HTTP client for the system of record. Every
// request outcome is reported to the connectivity monitor, and all calls go
// through a circuit breaker so a dead uplink fails fast into the offline
// path.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"scan-gate/internal/connectivity"
	"scan-gate/internal/status"
	"scan-gate/models"
	"scan-gate/utils"
)

type Client struct {
	baseURL string
	http    *http.Client
	monitor *connectivity.Monitor
	breaker *utils.CircuitBreaker
}

func New(baseURL string, timeout time.Duration, monitor *connectivity.Monitor) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		monitor: monitor,
		breaker: utils.NewCircuitBreaker("server-api"),
	}
}

// Scan performs an authoritative validation. Domain rejections (not found,
// already used, ...) come back as a ScanResponse value; the error return is
// reserved for transport failures.
func (c *Client) Scan(ctx context.Context, req models.ScanRequest) (*models.ScanResponse, error) {
	var resp models.ScanResponse
	if err := c.post(ctx, "/api/v1/scan", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitBatch uploads pending writes to the merge endpoint.
func (c *Client) SubmitBatch(ctx context.Context, req models.SyncBatchRequest) (*models.SyncBatchResponse, error) {
	var resp models.SyncBatchResponse
	if err := c.post(ctx, "/api/v1/sync/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchTickets pulls the bulk cache-refresh listing.
func (c *Client) FetchTickets(ctx context.Context, query models.TicketQuery) ([]models.TicketWithLogs, error) {
	params := url.Values{}
	if query.Status != "" {
		params.Set("status", query.Status)
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		params.Set("offset", strconv.Itoa(query.Offset))
	}
	if query.IncludeLogs {
		params.Set("include_logs", "true")
	}

	path := "/api/v1/tickets"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var tickets []models.TicketWithLogs
	if err := c.do(ctx, http.MethodGet, path, nil, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(ctx, func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// No response at all: the server is unreachable from here.
		c.monitor.SetOnline(false)
		return fmt.Errorf("%w: %v", status.ErrTransport, err)
	}
	defer resp.Body.Close()

	c.monitor.SetOnline(true)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", status.ErrTransport, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: server returned %d", status.ErrTransport, resp.StatusCode)
	}

	// Non-5xx bodies carry the domain result (including rejections on 404
	// and 409); decode them into the caller's shape.
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", status.ErrTransport, err)
	}
	return nil
}
