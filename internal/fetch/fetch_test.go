package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	got, err := BuildURL("http://localhost:8787/", "plan/preview", Params{
		"record_uri": "manual://proposal/demo",
		"skip":       nil,
		"limit":      50,
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8787/plan/preview?limit=50&record_uri=manual%3A%2F%2Fproposal%2Fdemo", got)

	var missing *string
	got, err = BuildURL("http://api.test", "/events", Params{"workspaceId": missing})
	require.NoError(t, err)
	assert.Equal(t, "http://api.test/events", got)

	_, err = BuildURL("localhost", "/events", nil)
	assert.Error(t, err)
}

func TestTrackerUnparseableSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	tr := &Tracker{HTTPClient: srv.Client()}
	res, err := tr.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Parsed)
	assert.Nil(t, res.Data)
	assert.Equal(t, "<html>oops</html>", res.Text)

	snap := NewSnapshot(srv.URL, res, nil)
	assert.Equal(t, StateText, snap.State())
	assert.Equal(t, NotJSON, snap.Error)
	assert.Equal(t, "<html>oops</html>", snap.Text)
}

func TestTrackerNullBodyIsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("null"))
	}))
	defer srv.Close()

	tr := &Tracker{HTTPClient: srv.Client()}
	res, err := tr.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.True(t, res.Parsed)
	assert.Nil(t, res.Data)

	snap := NewSnapshot(srv.URL, res, nil)
	assert.Equal(t, StateJSON, snap.State())
	assert.Empty(t, snap.Error)
}

func TestTrackerErrorStatusWithJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom","details":{"step":"plan"}}`))
	}))
	defer srv.Close()

	tr := &Tracker{HTTPClient: srv.Client()}
	res, err := tr.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 500, res.Status)
	assert.True(t, res.Parsed)

	snap := NewSnapshot(srv.URL, res, nil)
	assert.Equal(t, StateError, snap.State())
	assert.Equal(t, `Request failed with status 500: boom: {"step":"plan"}`, snap.Error)
	assert.Nil(t, snap.Data)

	assert.Equal(t, `boom: {"step":"plan"}`, FormatAPIError(res, "fallback"))
}

func TestTrackerEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := &Tracker{HTTPClient: srv.Client()}
	res, err := tr.Do(context.Background(), http.MethodDelete, srv.URL, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Parsed)
	assert.Equal(t, StateEmpty, NewSnapshot(srv.URL, res, nil).State())
}

func TestTrackerNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := &Tracker{}
	res, err := tr.Do(context.Background(), http.MethodGet, url, nil)
	require.Error(t, err)

	snap := NewSnapshot(url, res, err)
	assert.Equal(t, StateError, snap.State())
	assert.Zero(t, snap.Status)
	assert.Nil(t, snap.Data)
}

func TestTrackerDecorateAndBody(t *testing.T) {
	var gotCookie, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("ftops_session"); err == nil {
			gotCookie = c.Value
		}
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := &Tracker{
		HTTPClient: srv.Client(),
		Decorate: func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "ftops_session", Value: "tok"})
		},
	}
	res, err := tr.Do(context.Background(), http.MethodPost, srv.URL, map[string]string{"status": "done"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, res.Data)
	assert.Equal(t, "tok", gotCookie)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"status":"done"}`, string(gotBody))
}

func TestFormatAPIError(t *testing.T) {
	cases := []struct {
		name string
		res  Result
		want string
	}{
		{"code only", Result{Data: map[string]any{"error": "not_found"}, Text: `{"error":"not_found"}`}, "not_found"},
		{"text", Result{Text: "bad gateway"}, "bad gateway"},
		{"fallback", Result{}, "Failed to load."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatAPIError(tc.res, "Failed to load."))
		})
	}
}
