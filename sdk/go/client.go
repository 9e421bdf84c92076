package ftopssdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"go.uber.org/zap"

	"ftops/internal/fetch"
	"ftops/internal/wire"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8787"
	// SessionCookie carries the session token issued by the access layer.
	SessionCookie = "ftops_session"
	// DebugEmailHeader names the dev-only identity header.
	DebugEmailHeader = "X-Debug-Email"
)

// Client is the ops API HTTP client.
type Client struct {
	BaseURL      string
	SessionToken string
	DebugEmail   string
	HTTPClient   *http.Client
	Timeout      time.Duration
	Logger       *zap.Logger

	once    sync.Once
	tracker *fetch.Tracker
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		Timeout: 15 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    any
	Counts     map[string]int
	Body       string
	Result     fetch.Result
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Friendly renders the error for display, falling back when the body is empty.
func (e *APIError) Friendly(fallback string) string {
	if e.Result.Text != "" {
		return fetch.FormatAPIError(e.Result, fallback)
	}
	if e.Code != "" {
		return wire.APIError{Code: e.Code, Details: e.Details}.Text()
	}
	return fallback
}

// DecodeError reports a 2xx response whose body is not the expected JSON.
type DecodeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DecodeError) Error() string { return fetch.NotJSON }
func (e *DecodeError) Unwrap() error { return e.Err }

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (c *Client) init() {
	c.once.Do(func() {
		httpClient := c.HTTPClient
		if httpClient == nil {
			jar, _ := cookiejar.New(nil)
			httpClient = &http.Client{Timeout: c.Timeout, Jar: jar}
		}
		c.tracker = &fetch.Tracker{
			HTTPClient: httpClient,
			Logger:     c.Logger,
			Decorate:   c.decorate,
		}
	})
}

func (c *Client) decorate(req *http.Request) {
	if c.SessionToken != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.SessionToken})
	}
	if c.DebugEmail != "" {
		req.Header.Set(DebugEmailHeader, c.DebugEmail)
	}
}

// URL resolves an API path against the base URL.
func (c *Client) URL(path string, params fetch.Params) (string, error) {
	return fetch.BuildURL(c.BaseURL, path, params)
}

// Raw performs a request and returns the tracked result without interpreting the status.
func (c *Client) Raw(ctx context.Context, method, path string, params fetch.Params, body any) (fetch.Result, error) {
	c.init()
	u, err := c.URL(path, params)
	if err != nil {
		return fetch.Result{}, err
	}
	return c.tracker.Do(ctx, method, u, body)
}

func (c *Client) do(ctx context.Context, method, path string, params fetch.Params, body, out any) (fetch.Result, error) {
	res, err := c.Raw(ctx, method, path, params, body)
	if err != nil {
		return res, err
	}
	if !res.OK {
		return res, newAPIError(res)
	}
	if out == nil || res.Text == "" {
		return res, nil
	}
	if !res.Parsed {
		return res, &DecodeError{StatusCode: res.Status, Body: res.Text, Err: errors.New("invalid json")}
	}
	if err := res.Decode(out); err != nil {
		return res, &DecodeError{StatusCode: res.Status, Body: res.Text, Err: err}
	}
	return res, nil
}

func newAPIError(res fetch.Result) *APIError {
	e := &APIError{StatusCode: res.Status, Body: res.Text, Result: res}
	if body, ok := wire.ErrorBody(res.Data); ok {
		e.Code = body.Code
		e.Message = body.Message
		e.Details = body.Details
		e.Counts = body.Counts
	}
	return e
}

// Snapshot maps a call outcome onto the panel snapshot. API and decode errors
// keep the response; only transport failures become a bare error.
func Snapshot(res fetch.Result, err error) fetch.Snapshot {
	var apiErr *APIError
	var decErr *DecodeError
	if err != nil && !errors.As(err, &apiErr) && !errors.As(err, &decErr) {
		return fetch.NewSnapshot(res.URL, res, err)
	}
	return fetch.NewSnapshot(res.URL, res, nil)
}
