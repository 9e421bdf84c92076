package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ftops/internal/db"
	"ftops/internal/demo"
	"ftops/internal/domain"
	"ftops/internal/engine"
	"ftops/internal/migrate"
	"ftops/internal/prefs"
	"ftops/internal/templates"
	ftopssdk "ftops/sdk/go"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Dir: t.TempDir(), Name: db.DevAPIDB})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, migrate.DevAPI); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, nil)
	if _, err := e.EnsureDefaultWorkspace(context.Background()); err != nil {
		t.Fatalf("default workspace: %v", err)
	}
	handler, err := New(Config{Engine: e, Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Counts  map[string]int `json:"counts"`
}

func decodeError(t *testing.T, data []byte) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal error body %s: %v", string(data), err)
	}
	return body
}

func demoEvent(t *testing.T, scenarioID, externalID string) domain.TestEvent {
	t.Helper()
	sc, ok := demo.Find(scenarioID)
	if !ok {
		t.Fatalf("scenario %s missing", scenarioID)
	}
	return domain.TestEvent{
		Source:     sc.Source,
		Type:       sc.Type,
		ExternalID: externalID,
		Payload:    sc.Payload(externalID, demo.VariantOff),
	}
}

func TestHealthReportsMigrations(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	var h domain.Health
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if !h.OK || !h.Migrations.OK || h.Migrations.MissingCount != 0 {
		t.Fatalf("health: %+v", h)
	}
	if h.Migrations.AppliedLatest != h.Migrations.ExpectedLatest || h.Migrations.AppliedLatest == "0000" {
		t.Fatalf("migration versions: %+v", h.Migrations)
	}
}

func TestTestEventDuplicate(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	ev := demoEvent(t, "manual-proposal", "proposal-1")

	res, first := doJSON(t, client, http.MethodPost, srv.URL+"/events/test", ev, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first submit %d: %s", res.StatusCode, string(first))
	}
	res, second := doJSON(t, client, http.MethodPost, srv.URL+"/events/test", ev, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second submit %d: %s", res.StatusCode, string(second))
	}
	var a, b testEventResponse
	_ = json.Unmarshal(first, &a)
	_ = json.Unmarshal(second, &b)
	if !a.OK || a.Duplicate || a.IdempotencyKey == "" {
		t.Fatalf("first: %+v", a)
	}
	if !b.Duplicate || b.IdempotencyKey != a.IdempotencyKey {
		t.Fatalf("second: %+v", b)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/events", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list events %d: %s", res.StatusCode, string(data))
	}
	var list eventList
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(list.Events) != 1 || list.Events[0].IdempotencyKey != a.IdempotencyKey || list.Events[0].Payload == nil {
		t.Fatalf("events: %+v", list.Events)
	}
}

func TestTestEventValidation(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/events/test", map[string]any{
		"source": "manual", "type": engine.TypeRecordUpserted, "externalId": "x", "payload": map[string]any{"line_items": "nope"},
	}, nil)
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Error != "invalid_payload" {
		t.Fatalf("expected invalid_payload, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/events/test", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d %s", res.StatusCode, string(data))
	}
}

func TestPreviewUnknownRecord(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/plan/preview?record_uri="+url.QueryEscape("manual://proposal/none"), nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Error != "record_not_found" {
		t.Fatalf("error body: %+v", body)
	}
}

func TestCommercialRecordEscapedURI(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	if _, err := srv.Engine.Ingest(context.Background(), demoEvent(t, "manual-proposal", "p-9")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/commercial-records/"+url.PathEscape("manual://proposal/p-9"), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get record %d: %s", res.StatusCode, string(data))
	}
	var detail domain.CommercialRecordDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if detail.Record["uri"] != "manual://proposal/p-9" || len(detail.LineItems) != 3 {
		t.Fatalf("record detail: %+v", detail)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/commercial-records?query=p-9", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list records %d: %s", res.StatusCode, string(data))
	}
	var page domain.RecordPage
	_ = json.Unmarshal(data, &page)
	if len(page.Records) != 1 || page.Limit != 50 {
		t.Fatalf("record page: %+v", page)
	}
}

func TestWorkspaceDeleteCounts(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/workspaces", map[string]any{"slug": "studio", "name": "Studio"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create workspace %d: %s", res.StatusCode, string(data))
	}
	var ws domain.Workspace
	_ = json.Unmarshal(data, &ws)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/integrations", map[string]any{
		"workspaceId":       ws.ID,
		"provider":          "qbo",
		"environment":       "sandbox",
		"externalAccountId": "realm-1",
		"secrets":           map[string]string{"webhookVerifierToken": "tok"},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create integration %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/workspaces/"+ws.ID, nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, string(data))
	}
	body := decodeError(t, data)
	if body.Error != "workspace_not_empty" {
		t.Fatalf("error code: %+v", body)
	}
	if diff := cmp.Diff(map[string]int{"integrations": 1}, body.Counts); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/workspaces/ws_default", nil, nil)
	if res.StatusCode != http.StatusConflict || decodeError(t, data).Error != "cannot_delete_default_workspace" {
		t.Fatalf("expected default guard, got %d %s", res.StatusCode, string(data))
	}
}

func TestSessionCookieRequired(t *testing.T) {
	const secret = "test-secret"
	srv, cleanup := newTestServer(t, AuthConfig{SessionSecret: secret})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error != "unauthorized" {
		t.Fatalf("expected unauthorized, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/projects", nil, map[string]string{"Cookie": SessionCookie + "=garbage"})
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error != "invalid_session" {
		t.Fatalf("expected invalid_session, got %d %s", res.StatusCode, string(data))
	}
	token, err := IssueSession(secret, "ops@example.com", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/projects", nil, map[string]string{"Cookie": SessionCookie + "=" + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("with session %d: %s", res.StatusCode, string(data))
	}
}

func TestWebhookRecordedUnverified(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{SessionSecret: "s"})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/ingest/shopify/webhook?env=sandbox", map[string]any{"id": 7}, map[string]string{
		"X-Shopify-Shop-Domain": "unknown.myshopify.com",
		"X-Shopify-Topic":       "orders/create",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("webhook %d: %s", res.StatusCode, string(data))
	}
	var out webhookResponse
	_ = json.Unmarshal(data, &out)
	if out.Verified || out.VerifyError != "integration_not_found" || out.ID == "" {
		t.Fatalf("webhook response: %+v", out)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/ingest/nope/webhook", map[string]any{}, nil)
	if res.StatusCode != http.StatusNotFound || decodeError(t, data).Error != "unknown_provider" {
		t.Fatalf("expected unknown_provider, got %d %s", res.StatusCode, string(data))
	}
}

func TestSDKRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	ctx := context.Background()
	c := ftopssdk.New(srv.URL)
	c.DebugEmail = "ops@example.com"

	if _, err := srv.Engine.CreateTemplate(ctx, domain.TemplateInput{Key: "kickoff", Title: "Kickoff call", Kind: "task", IsActive: true}); err != nil {
		t.Fatalf("create template: %v", err)
	}
	if _, err := c.CreateRule(ctx, "kickoff", domain.RuleInput{Priority: 10, MatchJSON: `{"attach_to":"project"}`, IsActive: true}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	sent, err := c.SendTestEvent(ctx, demoEvent(t, "manual-proposal", "p-1"))
	if err != nil || !sent.OK || sent.IdempotencyKey == "" {
		t.Fatalf("send: %v %+v", err, sent)
	}
	plan, _, err := c.PlanPreview(ctx, "manual://proposal/p-1")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if got := plan.Matches(domain.ScopeProject, domain.ScopeProject); len(got) != 1 || got[0].TemplateKey != "kickoff" {
		t.Fatalf("project matches: %+v", plan.MatchedTemplatesByContext)
	}

	fr, err := c.ProjectFromRecord(ctx, "manual://proposal/p-1")
	if err != nil || !fr.Created {
		t.Fatalf("from record: %v %+v", err, fr)
	}
	mat, err := c.Materialize(ctx, fr.Project.ID)
	if err != nil || mat.TasksCreated != 1 {
		t.Fatalf("materialize: %v %+v", err, mat)
	}
	tasks, err := c.ProjectTasks(ctx, fr.Project.ID)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks: %v %+v", err, tasks)
	}
	if err := c.UpdateTaskStatus(ctx, tasks[0].ID, domain.StatusDone); err != nil {
		t.Fatalf("update status: %v", err)
	}
	note, err := c.AddTaskNote(ctx, tasks[0].ID, "shipped")
	if err != nil || note.AuthorEmail != "ops@example.com" {
		t.Fatalf("add note: %v %+v", err, note)
	}

	err = c.UpdateTaskStatus(ctx, tasks[0].ID, "review")
	if !ftopssdk.IsCode(err, "invalid_status") {
		t.Fatalf("expected invalid_status, got %v", err)
	}
	steps, err := c.ReplaceTemplateSteps(ctx, "kickoff", []domain.TemplateStep{{Title: "Book call"}, {Title: "Send agenda"}})
	if err != nil || len(steps) != 2 || steps[1].Position != 2 {
		t.Fatalf("steps: %v %+v", err, steps)
	}
}

func TestTemplateDraftRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	ctx := context.Background()
	svc := templates.Service{API: ftopssdk.New(srv.URL), Prefs: prefs.NewMemory()}

	if _, err := svc.Create(ctx, templates.Draft{Key: "install", Title: "Install", Kind: "task", Scope: domain.ScopeProject, IsActive: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	sent := templates.Draft{
		Key:              "install",
		Title:            "Install on site",
		Kind:             "checklist",
		Scope:            domain.ScopeDeliverable,
		CategoryKey:      "fulfillment",
		DeliverableKey:   "dining-table",
		DefaultPosition:  "3",
		DefaultStateJSON: `{"phase":"design","checks":["level","anchor"]}`,
		IsActive:         false,
	}
	if _, err := svc.Update(ctx, "install", sent); err != nil {
		t.Fatalf("update: %v", err)
	}
	detail, err := svc.Load(ctx, "install")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(sent, templates.DraftFrom(detail.Template)); diff != "" {
		t.Fatalf("draft after update (-sent +stored):\n%s", diff)
	}

	cleared := sent
	cleared.CategoryKey = ""
	cleared.DefaultPosition = ""
	cleared.DefaultStateJSON = ""
	if _, err := svc.Update(ctx, "install", cleared); err != nil {
		t.Fatalf("clear: %v", err)
	}
	detail, err = svc.Load(ctx, "install")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if diff := cmp.Diff(cleared, templates.DraftFrom(detail.Template)); diff != "" {
		t.Fatalf("draft after clearing (-sent +stored):\n%s", diff)
	}
	if detail.Template.DefaultPosition != nil {
		t.Fatalf("position not cleared: %d", *detail.Template.DefaultPosition)
	}
}
