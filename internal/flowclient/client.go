// Package flowclient talks to the round-flow backend on behalf of one user.
// A Client is a ledger.Source.
package flowclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/enftaurus/vidyamitra/internal/ledger"
	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// DefaultTimeout bounds every request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Client issues round-flow requests identified by the user_id cookie.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
}

// New creates a client for userID against the backend at baseURL.
func New(baseURL, userID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    &http.Client{Timeout: timeout},
	}
}

type statusResponse struct {
	Status    map[string]string `json:"status"`
	FlowReset bool              `json:"flow_reset"`
	Code      string            `json:"code"`
	Detail    string            `json:"detail"`
}

func (r statusResponse) statusMap() model.StatusMap {
	m := make(model.StatusMap, len(r.Status))
	for k, v := range r.Status {
		m[model.RoundKey(k)] = model.RoundStatus(v)
	}
	return m.Normalize()
}

// Status fetches the current status.
func (c *Client) Status(ctx context.Context) (model.StatusMap, error) {
	resp, err := c.do(ctx, http.MethodGet, "/interview_flow/status")
	if err != nil {
		return nil, err
	}
	return resp.statusMap(), nil
}

// Reset clears every round.
func (c *Client) Reset(ctx context.Context) (model.StatusMap, error) {
	resp, err := c.do(ctx, http.MethodPost, "/interview_flow/reset")
	if err != nil {
		return nil, err
	}
	return resp.statusMap(), nil
}

// Start marks round in progress, subject to the backend's gating.
func (c *Client) Start(ctx context.Context, round model.RoundKey) (model.StatusMap, error) {
	resp, err := c.do(ctx, http.MethodPost, "/interview_flow/"+url.PathEscape(string(round))+"/start")
	if err != nil {
		return nil, err
	}
	return resp.statusMap(), nil
}

// Complete marks round completed. Completing the final round reports
// FlowReset.
func (c *Client) Complete(ctx context.Context, round model.RoundKey) (ledger.Update, error) {
	resp, err := c.do(ctx, http.MethodPost, "/interview_flow/"+url.PathEscape(string(round))+"/complete")
	if err != nil {
		return ledger.Update{}, err
	}
	return ledger.Update{Status: resp.statusMap(), FlowReset: resp.FlowReset}, nil
}

// Mark implements ledger.Source.
func (c *Client) Mark(ctx context.Context, round model.RoundKey, status model.RoundStatus) (ledger.Update, error) {
	switch status {
	case model.StatusInProgress:
		st, err := c.Start(ctx, round)
		return ledger.Update{Status: st}, err
	case model.StatusCompleted:
		return c.Complete(ctx, round)
	default:
		return ledger.Update{}, fmt.Errorf("mark %s: backend cannot set status %q", round, status)
	}
}

// Ping checks that the backend answers its health route.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errclass.ErrStatusUnavailable.WithMessagef("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errclass.ErrStatusUnavailable.WithMessagef("GET /healthz: http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string) (statusResponse, error) {
	var out statusResponse

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return out, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: "user_id", Value: c.userID})

	resp, err := c.http.Do(req)
	if err != nil {
		return out, errclass.ErrStatusUnavailable.WithMessagef("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, errclass.ErrStatusUnavailable.WithMessagef("read response: %v", err)
	}
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.Code != "" {
			return out, errclass.FromCode(out.Code, out.Detail)
		}
		return out, errclass.ErrStatusUnavailable.WithMessagef("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if decodeErr != nil || out.Status == nil {
		return out, errclass.ErrStatusUnavailable.WithMessage("malformed status response")
	}
	return out, nil
}

var _ ledger.Source = (*Client)(nil)
