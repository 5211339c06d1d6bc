// Package remote is the policy store client: it implements policy.Service
// over the REST contract of the hosted store, so the console controller can
// run against a remote API exactly as it runs against a local store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meshlockr.org/internal/policy"
)

// RequestError is a non-success response from the store. The message comes
// from the response body when the store provided one.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("store request failed with status %d: %s", e.StatusCode, e.Message)
}

// NetworkError means the request could not be completed at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "store unreachable: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// Client talks to the policy endpoints of the admin API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

var _ policy.Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client with sensible defaults.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type policyRequest struct {
	ID              string   `json:"id,omitempty"`
	OrgID           string   `json:"org_id"`
	AllowCountry    []string `json:"allow_country"`
	AllowState      []string `json:"allow_state,omitempty"`
	BlockTimeRanges []string `json:"block_time_ranges,omitempty"`
	RequireTrusted  bool     `json:"require_trusted_device"`
	CreatedBy       string   `json:"created_by,omitempty"`
}

func (c *Client) List(ctx context.Context, orgID string) ([]policy.AccessPolicy, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, policy.ErrOrgRequired
	}
	var out []policy.AccessPolicy
	q := url.Values{"org_id": []string{orgID}}
	if err := c.do(ctx, http.MethodGet, "/v1/policies?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, orgID string, p policy.Payload) (policy.AccessPolicy, error) {
	if err := p.Validate(); err != nil {
		return policy.AccessPolicy{}, err
	}
	req := policyRequest{
		OrgID:           orgID,
		AllowCountry:    p.AllowCountry,
		AllowState:      p.AllowState,
		BlockTimeRanges: p.BlockTimeRanges,
		RequireTrusted:  p.RequireTrusted,
		CreatedBy:       p.CreatedBy,
	}
	var out policy.AccessPolicy
	if err := c.do(ctx, http.MethodPost, "/v1/policies", req, &out); err != nil {
		return policy.AccessPolicy{}, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, id, orgID string, p policy.Payload) (policy.AccessPolicy, error) {
	if strings.TrimSpace(id) == "" {
		return policy.AccessPolicy{}, policy.ErrIDRequired
	}
	if err := p.Validate(); err != nil {
		return policy.AccessPolicy{}, err
	}
	req := policyRequest{
		ID:              id,
		OrgID:           orgID,
		AllowCountry:    p.AllowCountry,
		AllowState:      p.AllowState,
		BlockTimeRanges: p.BlockTimeRanges,
		RequireTrusted:  p.RequireTrusted,
	}
	var out policy.AccessPolicy
	if err := c.do(ctx, http.MethodPut, "/v1/policies", req, &out); err != nil {
		return policy.AccessPolicy{}, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return policy.ErrIDRequired
	}
	return c.do(ctx, http.MethodDelete, "/v1/policies", map[string]string{"id": id}, nil)
}

// do sends one JSON request and decodes the response into out when non-nil.
// Non-success statuses become RequestError with the body's error message;
// transport failures become NetworkError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &RequestError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
