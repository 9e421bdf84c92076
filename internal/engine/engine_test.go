package engine_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ftops/internal/db"
	"ftops/internal/demo"
	"ftops/internal/domain"
	"ftops/internal/engine"
	"ftops/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Dir: dir, Name: db.DevAPIDB})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, migrate.DevAPI); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.EnsureDefaultWorkspace(ctx); err != nil {
		t.Fatalf("default workspace: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) ingest(t *testing.T, scenarioID, externalID string) engine.IngestResult {
	t.Helper()
	sc, ok := demo.Find(scenarioID)
	if !ok {
		t.Fatalf("scenario %s missing", scenarioID)
	}
	res, err := env.Engine.Ingest(env.Ctx, domain.TestEvent{
		Source:     sc.Source,
		Type:       sc.Type,
		ExternalID: externalID,
		Payload:    sc.Payload(externalID, demo.VariantOff),
	})
	if err != nil {
		t.Fatalf("ingest %s: %v", externalID, err)
	}
	return res
}

func (env testEnv) template(t *testing.T, key, title string, pos int, matchJSON string) {
	t.Helper()
	if _, err := env.Engine.CreateTemplate(env.Ctx, domain.TemplateInput{Key: key, Title: title, Kind: "task", DefaultPosition: &pos, IsActive: true}); err != nil {
		t.Fatalf("create template %s: %v", key, err)
	}
	if _, err := env.Engine.CreateRule(env.Ctx, key, domain.RuleInput{Priority: 100, MatchJSON: matchJSON, IsActive: true}); err != nil {
		t.Fatalf("create rule %s: %v", key, err)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	first := env.ingest(t, "manual-proposal", "proposal-demo-1")
	if first.Duplicate {
		t.Fatalf("first submission flagged duplicate")
	}
	if first.RecordURI != "manual://proposal/proposal-demo-1" {
		t.Fatalf("record uri: %s", first.RecordURI)
	}
	second := env.ingest(t, "manual-proposal", "proposal-demo-1")
	if !second.Duplicate || second.IdempotencyKey != first.IdempotencyKey || second.EventID != first.EventID {
		t.Fatalf("resubmission: %+v vs %+v", second, first)
	}
	evs, err := env.Engine.Repo.ListEvents(env.Ctx, 10)
	if err != nil || len(evs) != 1 {
		t.Fatalf("events: %v %d", err, len(evs))
	}
	if evs[0].ProcessedAt == "" || evs[0].ProcessError != "" {
		t.Fatalf("event not processed cleanly: %+v", evs[0])
	}
	items, err := env.Engine.Repo.LineItems(env.Ctx, first.RecordURI)
	if err != nil || len(items) != 3 {
		t.Fatalf("line items: %v %d", err, len(items))
	}
	rec, err := env.Engine.Repo.GetRecord(env.Ctx, first.RecordURI)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.CustomerDisplay != "Jane Smith" || rec.QuotedInstallDate != "2026-03-20" {
		t.Fatalf("record fields: %+v", rec)
	}
}

func TestIngestRejectsBadPayload(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Ingest(env.Ctx, domain.TestEvent{Source: "manual", Type: engine.TypeRecordUpserted, ExternalID: "x", Payload: map[string]any{"line_items": "nope"}})
	var ee *engine.Error
	if !errors.As(err, &ee) || ee.Kind != engine.KindInvalid || ee.Code != "invalid_payload" {
		t.Fatalf("expected invalid_payload, got %v", err)
	}
	if !errors.Is(err, engine.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload in chain")
	}
	if _, err := env.Engine.Ingest(env.Ctx, domain.TestEvent{Source: "manual", Type: engine.TypeRecordUpserted}); err == nil {
		t.Fatalf("expected missing external id error")
	}
}

func TestIngestUnsupportedTypeIsStoredWithError(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Ingest(env.Ctx, domain.TestEvent{Source: "shopify", Type: "order_cancelled", ExternalID: "o-1", Payload: map[string]any{"id": 1}})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.ProcessError == "" {
		t.Fatalf("expected process error")
	}
	evs, _ := env.Engine.Repo.ListEvents(env.Ctx, 10)
	if len(evs) != 1 || evs[0].ProcessError != `unsupported event type "order_cancelled"` {
		t.Fatalf("stored event: %+v", evs)
	}
}

func TestPreviewMatchesRules(t *testing.T) {
	env := newTestEnv(t)
	env.template(t, "kickoff", "Kickoff call", 1, `{"attach_to":"project"}`)
	env.template(t, "build-table", "Build table", 2, `{"attach_to":"deliverable","deliverable_key":"dining_table"}`)
	env.template(t, "install", "Install", 3, `{"attach_to":"deliverable","config":{"installRequired":true}}`)
	env.template(t, "samples", "Send samples", 4, `{"attach_to":"shared","config":{"requiresSamples":true}}`)

	rec := env.ingest(t, "manual-proposal", "p-1")
	plan, err := env.Engine.Preview(env.Ctx, rec.RecordURI)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if plan.PlanID == "" {
		t.Fatalf("missing plan id")
	}
	got := map[string][]string{}
	for k, ms := range plan.MatchedTemplatesByContext {
		for _, m := range ms {
			got[k] = append(got[k], m.TemplateKey)
		}
	}
	want := map[string][]string{
		"project::project": {"kickoff"},
		"deliverable::manual://proposal/p-1/line/table":   {"build-table"},
		"deliverable::manual://proposal/p-1/line/install": {"install"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("matches (-want +got):\n%s", diff)
	}
	wantWarnings := []string{"No templates matched deliverable manual://proposal/p-1/line/delivery."}
	if diff := cmp.Diff(wantWarnings, plan.Warnings); diff != "" {
		t.Fatalf("warnings (-want +got):\n%s", diff)
	}
	if len(plan.Contexts.Shared) != 0 || len(plan.Contexts.Deliverables) != 3 {
		t.Fatalf("contexts: %+v", plan.Contexts)
	}

	grouped := env.ingest(t, "cabinetry-grouped", "c-1")
	plan, err = env.Engine.Preview(env.Ctx, grouped.RecordURI)
	if err != nil {
		t.Fatalf("preview grouped: %v", err)
	}
	if len(plan.Contexts.Shared) != 1 {
		t.Fatalf("shared contexts: %+v", plan.Contexts.Shared)
	}
	sc := plan.Contexts.Shared[0]
	if sc.GroupKey != "kitchen" || len(sc.LineItems) != 2 || !sc.Derived.RequiresSamples || !sc.Derived.InstallRequired || sc.Derived.DeliveryRequired {
		t.Fatalf("shared context: %+v", sc)
	}
	if ms := plan.Matches("shared", "kitchen"); len(ms) != 1 || ms[0].TemplateKey != "samples" {
		t.Fatalf("shared matches: %+v", ms)
	}

	again, err := env.Engine.Preview(env.Ctx, grouped.RecordURI)
	if err != nil || again.PlanID != plan.PlanID {
		t.Fatalf("plan id not stable: %v", err)
	}
}

func TestPreviewUnknownRecord(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Preview(env.Ctx, "manual://proposal/missing")
	var ee *engine.Error
	if !errors.As(err, &ee) || ee.Kind != engine.KindNotFound || ee.Code != "record_not_found" {
		t.Fatalf("expected record_not_found, got %v", err)
	}
}

func TestMaterializeRunsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.template(t, "kickoff", "Kickoff call", 1, `{"attach_to":"project"}`)
	env.template(t, "install", "Install", 2, `{"attach_to":"deliverable","config":{"installRequired":true}}`)
	rec := env.ingest(t, "manual-proposal", "p-2")

	created, err := env.Engine.FromRecord(env.Ctx, rec.RecordURI)
	if err != nil || !created.Created {
		t.Fatalf("from record: %v %+v", err, created)
	}
	if created.Project.Title != "Jane Smith" || created.Project.WorkspaceID != "ws_default" {
		t.Fatalf("project: %+v", created.Project)
	}
	again, err := env.Engine.FromRecord(env.Ctx, rec.RecordURI)
	if err != nil || again.Created || again.Project.ID != created.Project.ID {
		t.Fatalf("from record again: %v %+v", err, again)
	}

	dry, err := env.Engine.Materialize(env.Ctx, created.Project.ID, true)
	if err != nil || dry.TasksCreated != 2 {
		t.Fatalf("dry run: %v %+v", err, dry)
	}
	res, err := env.Engine.Materialize(env.Ctx, created.Project.ID, false)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if diff := cmp.Diff(domain.MaterializeResult{TasksCreated: 2}, res); diff != "" {
		t.Fatalf("materialize (-want +got):\n%s", diff)
	}
	res, err = env.Engine.Materialize(env.Ctx, created.Project.ID, false)
	if err != nil || !res.AlreadyMaterialized || res.TasksCreated != 0 {
		t.Fatalf("second materialize: %v %+v", err, res)
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, created.Project.ID)
	if err != nil || len(tasks) != 2 {
		t.Fatalf("tasks: %v %d", err, len(tasks))
	}
	if tasks[0].Scope != domain.ScopeProject || tasks[1].LineItemURI != "manual://proposal/p-2/line/install" {
		t.Fatalf("task shape: %+v", tasks)
	}
	if tasks[1].Title != "Install: On-site installation" || tasks[1].Status != domain.StatusTodo {
		t.Fatalf("task title/status: %+v", tasks[1])
	}

	updated, err := env.Engine.SetTaskStatus(env.Ctx, tasks[0].ID, domain.StatusDoing)
	if err != nil || updated.Status != domain.StatusDoing {
		t.Fatalf("set status: %v %+v", err, updated)
	}
	if _, err := env.Engine.SetTaskStatus(env.Ctx, tasks[0].ID, "review"); err == nil {
		t.Fatalf("expected invalid status error")
	}
	note, err := env.Engine.AddNote(env.Ctx, tasks[0].ID, "ops@example.com", "  called customer ")
	if err != nil || note.Body != "called customer" {
		t.Fatalf("add note: %v %+v", err, note)
	}
}

func TestWorkspaceDeleteGuards(t *testing.T) {
	env := newTestEnv(t)
	err := env.Engine.DeleteWorkspace(env.Ctx, "ws_default")
	var ee *engine.Error
	if !errors.As(err, &ee) || ee.Code != "cannot_delete_default_workspace" {
		t.Fatalf("expected default guard, got %v", err)
	}
	ws, err := env.Engine.CreateWorkspace(env.Ctx, domain.WorkspaceInput{Slug: "studio", Name: "Studio"})
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	if _, err := env.Engine.CreateWorkspace(env.Ctx, domain.WorkspaceInput{Slug: "studio", Name: "Again"}); err == nil {
		t.Fatalf("expected slug conflict")
	}
	if _, err := env.Engine.CreateIntegration(env.Ctx, domain.IntegrationInput{
		WorkspaceID: ws.ID, Provider: "shopify", Environment: "sandbox", ExternalAccountID: "studio.myshopify.com",
		Secrets: map[string]string{"webhookSecret": "s3cret"},
	}); err != nil {
		t.Fatalf("create integration: %v", err)
	}
	err = env.Engine.DeleteWorkspace(env.Ctx, ws.ID)
	if !errors.As(err, &ee) || ee.Code != "workspace_not_empty" {
		t.Fatalf("expected workspace_not_empty, got %v", err)
	}
	if diff := cmp.Diff(map[string]int{"integrations": 1}, ee.Counts); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
	renamed, err := env.Engine.UpdateWorkspace(env.Ctx, ws.ID, domain.WorkspaceInput{Name: "Studio B"})
	if err != nil || renamed.Slug != "studio" || renamed.Name != "Studio B" {
		t.Fatalf("update: %v %+v", err, renamed)
	}
}

func TestReceiveWebhookVerifiesSignature(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.CreateIntegration(env.Ctx, domain.IntegrationInput{
		WorkspaceID: "ws_default", Provider: "shopify", Environment: "production", ExternalAccountID: "shop.myshopify.com",
		DisplayName: "Main shop", Secrets: map[string]string{"webhookSecret": "s3cret"},
	})
	if err != nil {
		t.Fatalf("create integration: %v", err)
	}
	body := []byte(`{"id":42}`)
	header := http.Header{}
	header.Set("X-Shopify-Shop-Domain", "shop.myshopify.com")
	header.Set("X-Shopify-Topic", "orders/create")
	header.Set("X-Shopify-Hmac-Sha256", engine.Sign("s3cret", body))
	req, err := env.Engine.ReceiveWebhook(env.Ctx, engine.Webhook{Provider: "shopify", Header: header, Body: body})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !req.SignatureVerified || req.IntegrationID != it.ID || req.Environment != "production" || req.Topic != "orders/create" {
		t.Fatalf("verified request: %+v", req)
	}

	header.Set("X-Shopify-Hmac-Sha256", "forged")
	bad, err := env.Engine.ReceiveWebhook(env.Ctx, engine.Webhook{Provider: "shopify", Header: header, Body: body})
	if err != nil {
		t.Fatalf("receive forged: %v", err)
	}
	if bad.SignatureVerified || bad.VerifyError != "signature_mismatch" {
		t.Fatalf("forged request: %+v", bad)
	}

	list, err := env.Engine.Repo.ListIngestRequests(env.Ctx, domain.IngestFilter{Provider: "shopify", Limit: 50})
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %v %d", err, len(list))
	}
	if list[0].IntegrationDisplayName != "Main shop" {
		t.Fatalf("display name join: %+v", list[0])
	}
	detail, err := env.Engine.IngestDetail(env.Ctx, req.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"id": float64(42)}, detail.Body); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
}
