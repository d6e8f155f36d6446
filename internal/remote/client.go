// Package remote is the client adapter for the authoritative attendance
// store API. Every call is bounded by the caller's context; transport
// failures, timeouts and server faults surface as
// *attendance.UnavailableError so the state machine can take the
// local-cache fallback path.
package remote

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

	"github.com/roach88/timeclock/internal/attendance"
)

// Client talks to the attendance store over HTTP/JSON.
// Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the store at baseURL. timeout caps each
// request end to end, on top of whatever deadline the caller's context
// carries. Zero means attendance.DefaultRemoteTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = attendance.DefaultRemoteTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Read fetches the record for (workerID, day).
// Returns attendance.ErrNotFound when the store holds no record.
func (c *Client) Read(ctx context.Context, workerID string, day attendance.Day) (attendance.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordURL(workerID, day), nil)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("build read request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return attendance.Record{}, &attendance.UnavailableError{Op: "read", Err: err}
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var rec attendance.Record
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return attendance.Record{}, fmt.Errorf("decode record: %w", err)
		}
		return rec, nil
	case http.StatusNotFound:
		return attendance.Record{}, attendance.ErrNotFound
	default:
		return attendance.Record{}, c.statusError("read", resp)
	}
}

// Apply performs the conditional write. A 409 from the store becomes
// *attendance.ConflictError carrying the store's current version.
func (c *Client) Apply(ctx context.Context, rec attendance.Record, expectedVersion int64) (attendance.Record, error) {
	body, err := json.Marshal(struct {
		Record          attendance.Record `json:"record"`
		ExpectedVersion int64             `json:"expectedVersion"`
	}{rec, expectedVersion})
	if err != nil {
		return attendance.Record{}, fmt.Errorf("encode apply request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.recordURL(rec.WorkerID, rec.Day), bytes.NewReader(body))
	if err != nil {
		return attendance.Record{}, fmt.Errorf("build apply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return attendance.Record{}, &attendance.UnavailableError{Op: "apply", Err: err}
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var applied attendance.Record
		if err := json.NewDecoder(resp.Body).Decode(&applied); err != nil {
			return attendance.Record{}, fmt.Errorf("decode applied record: %w", err)
		}
		return applied, nil
	case http.StatusConflict:
		var er struct {
			Error          string `json:"error"`
			CurrentVersion int64  `json:"currentVersion"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return attendance.Record{}, fmt.Errorf("decode conflict response: %w", err)
		}
		return attendance.Record{}, &attendance.ConflictError{
			WorkerID:       rec.WorkerID,
			Day:            rec.Day,
			CurrentVersion: er.CurrentVersion,
		}
	default:
		return attendance.Record{}, c.statusError("apply", resp)
	}
}

// Healthy reports whether the store answers its health endpoint. Used by
// the reconciler to skip a cycle while the remote is still down.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer drain(resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) recordURL(workerID string, day attendance.Day) string {
	return fmt.Sprintf("%s/v1/workers/%s/records/%s",
		c.baseURL, url.PathEscape(workerID), url.PathEscape(string(day)))
}

// statusError maps non-success statuses: 5xx means the store is in
// trouble and counts as unreachable; anything else is a hard error.
func (c *Client) statusError(op string, resp *http.Response) error {
	msg := fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	if resp.StatusCode >= 500 {
		return &attendance.UnavailableError{Op: op, Err: errors.New(resp.Status)}
	}
	return msg
}

// drain reads the body to completion so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	body.Close()
}
