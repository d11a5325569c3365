package logicmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Query holds the parameters of a filtered list call.
type Query struct {
	Filter string // "field:value[,field:value...]"
	Fields string // comma-separated field list, empty for all
	Size   int    // 0 for the server default
}

// Observer is notified after every API call.
type Observer interface {
	ObserveCall(method, endpoint string, status Status, elapsed time.Duration, err error)
}

// Options configures a Client.
type Options struct {
	Account  string
	User     string
	Password string

	// BaseURL overrides the account-derived URL (used for testing and proxies).
	BaseURL string
	Timeout time.Duration

	Observer Observer
}

// Client issues requests against the inventory API and decodes response envelopes.
// Credentials are held here and nowhere else.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	observer   Observer
}

// NewClient creates a new API client.
func NewClient(opts Options) (*Client, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		if opts.Account == "" {
			return nil, fmt.Errorf("account or base URL is required")
		}
		baseURL = fmt.Sprintf("https://%s.logicmonitor.com/santaba/rest", opts.Account)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     opts.User,
		password: opts.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		observer: opts.Observer,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Query performs a filtered GET.
func (c *Client) Query(ctx context.Context, endpoint string, q Query) (*Envelope, error) {
	params := url.Values{}
	if q.Filter != "" {
		params.Set("filter", q.Filter)
	}
	if q.Fields != "" {
		params.Set("fields", q.Fields)
	}
	if q.Size > 0 {
		params.Set("size", strconv.Itoa(q.Size))
	}
	return c.do(ctx, http.MethodGet, endpoint, params, nil)
}

// Create performs a POST with a JSON body.
func (c *Client) Create(ctx context.Context, endpoint string, body any) (*Envelope, error) {
	return c.do(ctx, http.MethodPost, endpoint, nil, body)
}

// Update performs a PATCH with a JSON body. The endpoint may carry its own
// query string (e.g. patchFields).
func (c *Client) Update(ctx context.Context, endpoint string, body any) (*Envelope, error) {
	return c.do(ctx, http.MethodPatch, endpoint, nil, body)
}

// Delete performs a DELETE on an item endpoint.
func (c *Client) Delete(ctx context.Context, endpoint string) (*Envelope, error) {
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body any) (env *Envelope, err error) {
	start := time.Now()
	defer func() {
		var status Status
		if env != nil {
			status = env.Status
		}
		if c.observer != nil {
			c.observer.ObserveCall(method, endpoint, status, time.Since(start), err)
		}
		log.Debug().
			Str("method", method).
			Str("endpoint", endpoint).
			Int("status", int(status)).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("API call finished")
	}()

	reqURL, err := c.url(endpoint, params)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, endpoint, err)
	}

	return decodeEnvelope(resp.StatusCode, raw)
}

func (c *Client) url(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// decodeEnvelope turns an HTTP response into an envelope. Bodies that carry
// an envelope win over the HTTP status; otherwise the HTTP status is mapped.
func decodeEnvelope(httpStatus int, raw []byte) (*Envelope, error) {
	var env Envelope
	if len(raw) > 0 && json.Unmarshal(raw, &env) == nil && env.Status != 0 {
		env.Raw = raw
		return &env, nil
	}

	switch {
	case httpStatus == http.StatusNotFound:
		return &Envelope{Status: StatusNotFound, Errmsg: http.StatusText(httpStatus), Raw: raw}, nil
	case httpStatus >= 300:
		return &Envelope{Status: Status(httpStatus), Errmsg: http.StatusText(httpStatus), Raw: raw}, nil
	}

	return nil, fmt.Errorf("unexpected response body (HTTP %d): %.200s", httpStatus, string(raw))
}
