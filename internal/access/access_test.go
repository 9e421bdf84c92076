package access

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient("tok", "acct", srv.Client(), nil)
	require.NoError(t, err)
	c.BaseURL = srv.URL
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient("", "acct", nil, nil)
	assert.ErrorIs(t, err, ErrCredentials)
	_, err = NewClient("tok", "", nil, nil)
	assert.ErrorIs(t, err, ErrCredentials)
}

func TestMatchesHost(t *testing.T) {
	app := App{
		Domain:            "ops.from-trees.com/admin",
		SelfHostedDomains: []string{"ops.from-trees.com"},
		Destinations:      []map[string]any{{"type": "public", "uri": "api.from-trees.com/ingest"}},
	}
	assert.Equal(t, []string{"ops.from-trees.com/admin", "ops.from-trees.com", "api.from-trees.com/ingest"}, app.Domains())
	assert.True(t, app.MatchesHost("api.from-trees.com"))
	assert.True(t, app.MatchesHost("from-trees"))
	assert.False(t, App{Domain: "shop.example.com"}.MatchesHost("from-trees.com"))
}

func TestDiscoverFiltersAndPaginates(t *testing.T) {
	var auth []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/accounts/acct/access/apps":
			if r.URL.Query().Get("page") == "2" {
				_, _ = w.Write([]byte(`{"success":true,"result":[{"id":"a2","name":"API","destinations":[{"uri":"api.from-trees.com"}]}],"result_info":{"page":2,"total_pages":2}}`))
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"result":[{"id":"a1","name":"Ops","domain":"ops.from-trees.com","session_duration":"24h","app_launcher_visible":true},{"id":"x","name":"Other","domain":"other.example.com"}],"result_info":{"page":1,"total_pages":2}}`))
		case "/accounts/acct/access/apps/a1/policies":
			_, _ = w.Write([]byte(`{"success":true,"result":[{"id":"p1","name":"Staff","decision":"allow","precedence":1,"include":[{"email_domain":{"domain":"from-trees.com"}}]}]}`))
		case "/accounts/acct/access/apps/a2/policies":
			_, _ = w.Write([]byte(`{"success":true,"result":[]}`))
		default:
			http.NotFound(w, r)
		}
	})

	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	report, err := c.Discover(context.Background(), nil, now)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04T05:06:07.000Z", report.GeneratedAt)
	assert.Equal(t, DefaultHosts, report.Hosts)
	require.Len(t, report.Apps, 2)
	assert.Equal(t, "a1", report.Apps[0].ID)
	assert.Equal(t, "p1", report.Apps[0].Policies[0].ID)
	assert.Equal(t, []Policy{}, report.Apps[1].Policies)
	assert.Equal(t, []string{}, report.Apps[1].AllowedIdps)
	for _, a := range auth {
		assert.Equal(t, "Bearer tok", a)
	}

	var buf bytes.Buffer
	out := filepath.Join(t.TempDir(), "access.json")
	require.NoError(t, Write(&buf, report, out))
	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(saved))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(saved, &decoded))
	app := decoded["apps"].([]any)[0].(map[string]any)
	assert.Equal(t, "24h", app["session_duration"])
	assert.Equal(t, true, app["app_launcher_visible"])
	assert.Len(t, app["policies"], 1)
}

func TestDiscoverAbortsOnFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":10000,"message":"Authentication error"}]}`))
	})
	_, err := c.Discover(context.Background(), []string{"ops.from-trees.com"}, time.Now())
	assert.EqualError(t, err, `Cloudflare API failure: [{"code":10000,"message":"Authentication error"}]`)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("forbidden"))
	})
	_, err = c.Discover(context.Background(), nil, time.Now())
	assert.EqualError(t, err, "Cloudflare API error (403): forbidden")
}

func TestDiscoverSingleHost(t *testing.T) {
	var policyCalls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/acct/access/apps":
			_, _ = w.Write([]byte(`{"success":true,"result":[{"id":"ops","name":"Ops","domain":"ops.from-trees.com"},{"id":"api","name":"API","self_hosted_domains":["api.from-trees.com"]}],"result_info":{"page":1,"total_pages":1}}`))
		case "/accounts/acct/access/apps/ops/policies", "/accounts/acct/access/apps/api/policies":
			policyCalls = append(policyCalls, r.URL.Path)
			_, _ = w.Write([]byte(`{"success":true,"result":[]}`))
		default:
			http.NotFound(w, r)
		}
	})

	report, err := c.Discover(context.Background(), []string{"ops.from-trees.com"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"ops.from-trees.com"}, report.Hosts)
	require.Len(t, report.Apps, 1)
	assert.Equal(t, "ops", report.Apps[0].ID)
	assert.Equal(t, []string{"/accounts/acct/access/apps/ops/policies"}, policyCalls)
}
