// Package access snapshots the zero-trust access apps and policies that front given hosts.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"ftops/internal/fetch"
)

const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// DefaultHosts are audited when no --host is given.
var DefaultHosts = []string{"api.from-trees.com", "ops.from-trees.com"}

// ErrCredentials is returned when the token or account id is missing.
var ErrCredentials = errors.New("CLOUDFLARE_API_TOKEN and CLOUDFLARE_ACCOUNT_ID must be set.")

// Client reads access apps and policies for one account.
type Client struct {
	BaseURL   string
	Token     string
	AccountID string
	Logger    *zap.Logger

	tracker *fetch.Tracker
}

func NewClient(token, accountID string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if token == "" || accountID == "" {
		return nil, ErrCredentials
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{BaseURL: DefaultBaseURL, Token: token, AccountID: accountID, Logger: logger}
	c.tracker = &fetch.Tracker{
		HTTPClient: httpClient,
		Logger:     logger,
		Decorate: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+c.Token)
		},
	}
	return c, nil
}

type envelope struct {
	Success    bool            `json:"success"`
	Errors     json.RawMessage `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"result_info"`
}

// list GETs path and follows result_info pages, appending every result into out.
func list[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var out []T
	page := 1
	for {
		params := fetch.Params{}
		if page > 1 {
			params["page"] = page
		}
		u, err := fetch.BuildURL(c.BaseURL, path, params)
		if err != nil {
			return nil, err
		}
		res, err := c.tracker.Do(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		if !res.OK {
			return nil, fmt.Errorf("Cloudflare API error (%d): %s", res.Status, res.Text)
		}
		var env envelope
		if err := json.Unmarshal([]byte(res.Text), &env); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if !env.Success {
			errs := strings.TrimSpace(string(env.Errors))
			if errs == "" {
				errs = "null"
			}
			return nil, fmt.Errorf("Cloudflare API failure: %s", errs)
		}
		var items []T
		if len(env.Result) > 0 && string(env.Result) != "null" {
			if err := json.Unmarshal(env.Result, &items); err != nil {
				return nil, fmt.Errorf("decode %s result: %w", path, err)
			}
		}
		out = append(out, items...)
		if env.ResultInfo == nil || env.ResultInfo.TotalPages <= page {
			return out, nil
		}
		page++
	}
}

// Apps lists every access application of the account.
func (c *Client) Apps(ctx context.Context) ([]App, error) {
	return list[App](ctx, c, fmt.Sprintf("/accounts/%s/access/apps", url.PathEscape(c.AccountID)))
}

// Policies lists the policies attached to one application.
func (c *Client) Policies(ctx context.Context, appID string) ([]Policy, error) {
	return list[Policy](ctx, c, fmt.Sprintf("/accounts/%s/access/apps/%s/policies", url.PathEscape(c.AccountID), url.PathEscape(appID)))
}
