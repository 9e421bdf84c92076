package ftopssdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftops/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	c.SessionToken = "tok"
	c.DebugEmail = "ops@example.com"
	return c
}

func TestClientSendsSessionAndDebugHeader(t *testing.T) {
	var cookie, email string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie(SessionCookie); err == nil {
			cookie = ck.Value
		}
		email = r.Header.Get(DebugEmailHeader)
		_, _ = w.Write([]byte(`[]`))
	})
	_, err := c.Projects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", cookie)
	assert.Equal(t, "ops@example.com", email)
}

func TestClientAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"workspace_not_empty","counts":{"integrations":2,"projects":1}}`))
	})
	err := c.DeleteWorkspace(context.Background(), "ws_1")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "workspace_not_empty", apiErr.Code)
	assert.Equal(t, map[string]int{"integrations": 2, "projects": 1}, apiErr.Counts)
	assert.True(t, IsCode(err, "workspace_not_empty"))
	assert.Equal(t, "workspace_not_empty", apiErr.Friendly("fallback"))
}

func TestClientDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	_, err := c.Templates(context.Background())
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "not json", decErr.Body)
	assert.Equal(t, "Response was not valid JSON.", err.Error())
}

func TestPlanPreviewEscapesRecordURI(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("record_uri")
		_, _ = w.Write([]byte(`{"planId":"p1","warnings":["no match"],"contexts":{"project":{"type":"project","key":"project","record_uri":"manual://proposal/demo"},"shared":[],"deliverables":[]},"matchedTemplatesByContext":{"project::project":[{"templateKey":"kickoff","ruleId":"r1","rulePriority":100}]}}`))
	})
	p, res, err := c.PlanPreview(context.Background(), "manual://proposal/demo")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "manual://proposal/demo", gotQuery)
	assert.Equal(t, "p1", p.PlanID)
	assert.Equal(t, []string{"no match"}, p.Warnings)
	require.Len(t, p.Matches("project", "project"), 1)
	assert.Equal(t, "kickoff", p.Matches("project", "project")[0].TemplateKey)
}

func TestSendTestEventDuplicate(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{"ok":true,"idempotency_key":"abc","duplicate":true}`))
	})
	res, err := c.SendTestEvent(context.Background(), domain.TestEvent{Source: "manual", Type: "commercial_record_upserted", ExternalID: "demo-1"})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.IdempotencyKey)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "demo-1", body["externalId"])
	assert.Equal(t, map[string]any{}, body["payload"])
}

func TestSendTestEventFailureKeepsResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_payload"}`))
	})
	res, err := c.SendTestEvent(context.Background(), domain.TestEvent{Source: "manual", Type: "x", ExternalID: "e"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.False(t, res.OK)
	assert.True(t, IsCode(err, "invalid_payload"))
}

func TestReplaceTemplateStepsSendsFullList(t *testing.T) {
	var method, path string
	var body struct {
		Steps []domain.TemplateStep `json:"steps"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.EscapedPath()
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"steps": body.Steps})
	})
	steps, err := c.ReplaceTemplateSteps(context.Background(), "measure/site", []domain.TemplateStep{
		{Position: 1, Title: "Book visit"},
		{Position: 2, Title: "Measure"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/templates/measure%2Fsite/steps", path)
	assert.Len(t, steps, 2)
	assert.Equal(t, "Measure", body.Steps[1].Title)
}

func TestIngestRequestsFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "shopify", q.Get("provider"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "", q.Get("environment"))
		_, _ = w.Write([]byte(`{"requests":[{"id":"ir_1","provider":"shopify","received_at":"2024-01-01","signature_verified":1}],"limit":50}`))
	})
	page, err := c.IngestRequests(context.Background(), domain.IngestFilter{Provider: "shopify", Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Requests, 1)
	assert.True(t, bool(page.Requests[0].SignatureVerified))
}

func TestSnapshotKeepsFailedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"record_not_found"}`))
	})
	_, res, err := c.PlanPreview(context.Background(), "manual://proposal/missing")
	require.Error(t, err)
	snap := Snapshot(res, err)
	assert.Equal(t, 404, snap.Status)
	assert.Equal(t, "Request failed with status 404: record_not_found", snap.Error)

	c = New("http://127.0.0.1:1")
	_, res, err = c.PlanPreview(context.Background(), "manual://proposal/demo")
	require.Error(t, err)
	snap = Snapshot(res, err)
	assert.Zero(t, snap.Status)
	assert.NotEmpty(t, snap.Error)
}
