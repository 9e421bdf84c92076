package templates

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftops/internal/domain"
	"ftops/internal/prefs"
	ftopssdk "ftops/sdk/go"
)

func TestCreateInputValidation(t *testing.T) {
	d := NewDraft()
	d.Title = "Measure site"
	_, err := d.CreateInput()
	var v *domain.ValidationError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "Template key and title are required.", v.Message)

	d.Key = "  measure  "
	d.DefaultStateJSON = "{oops"
	_, err = d.CreateInput()
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "Default state JSON must be valid.", v.Message)

	d.DefaultStateJSON = `{"checklist": ["a"]}`
	d.DefaultPosition = "2.5"
	in, err := d.CreateInput()
	require.NoError(t, err)
	assert.Equal(t, "measure", in.Key)
	assert.Nil(t, in.DefaultPosition)
	assert.Nil(t, in.CategoryKey)

	body, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"measure","title":"Measure site","kind":"task","scope":"project","category_key":null,"deliverable_key":null,"default_state_json":{"checklist":["a"]},"default_position":null,"is_active":true}`, string(body))
}

func TestUpdateInputBlankStateIsNull(t *testing.T) {
	d := DraftFrom(domain.Template{Key: "k", Title: "T", Kind: "milestone", Scope: "deliverable", DefaultPosition: intp(4), IsActive: true})
	assert.Equal(t, "4", d.DefaultPosition)
	in, err := d.UpdateInput()
	require.NoError(t, err)
	require.NotNil(t, in.DefaultPosition)
	assert.Equal(t, 4, *in.DefaultPosition)
	body, _ := json.Marshal(in)
	assert.Contains(t, string(body), `"default_state_json":null`)
	assert.NotContains(t, string(body), `"key"`)
}

func TestRuleDraft(t *testing.T) {
	r := NewRuleDraft()
	in, err := r.Input()
	require.NoError(t, err)
	assert.Equal(t, 100, in.Priority)
	assert.Equal(t, "project", AttachTo(in.MatchJSON))

	for _, bad := range []string{"high", "1.5", "1e3", "99999999999999999999"} {
		r.Priority = bad
		_, err = r.Input()
		assert.EqualError(t, err, "Rule priority must be a number.", bad)
	}

	r.Priority = " -2 "
	in, err = r.Input()
	require.NoError(t, err)
	assert.Equal(t, -2, in.Priority)

	r.Priority = "5"
	r.MatchJSON = "{"
	_, err = r.Input()
	assert.EqualError(t, err, "Rule match JSON must be valid.")
	assert.Equal(t, "", AttachTo("{"))
}

func TestFilter(t *testing.T) {
	list := []domain.Template{
		{Key: "kickoff", Title: "Kickoff call", Scope: "project"},
		{Key: "samples", Title: "Send samples", Scope: "shared"},
	}
	assert.Len(t, Filter(list, ""), 2)
	got := Filter(list, "SHARED")
	require.Len(t, got, 1)
	assert.Equal(t, "samples", got[0].Key)
	assert.Len(t, Filter(list, "call"), 1)
}

func TestStepEditorReorderAndRenumber(t *testing.T) {
	e := NewStepEditor([]domain.TemplateStep{
		{ID: "s3", Position: 3, Title: "Install"},
		{ID: "s1", Position: 1, Title: "Measure"},
		{ID: "s2", Position: 2, Title: "Build"},
	})
	assert.Equal(t, []string{"s1", "s2", "s3"}, e.Refs())

	require.NoError(t, e.MoveUp("s3"))
	assert.Equal(t, []string{"s1", "s3", "s2"}, e.Refs())
	require.NoError(t, e.MoveUp("s1"))
	assert.Equal(t, []string{"s1", "s3", "s2"}, e.Refs())

	ref, err := e.Add("Inspect", "")
	require.NoError(t, err)
	require.NoError(t, e.MoveBefore(ref, "s1"))
	require.NoError(t, e.MoveAfter("s1", "s2"))
	require.NoError(t, e.Edit("s2", "Build carcass", "shop"))
	assert.Error(t, e.MoveDown("missing"))
	_, err = e.Add(" ", "")
	assert.Error(t, err)

	want := []domain.TemplateStep{
		{Position: 1, Title: "Inspect"},
		{ID: "s3", Position: 2, Title: "Install"},
		{ID: "s2", Position: 3, Title: "Build carcass", Description: "shop"},
		{ID: "s1", Position: 4, Title: "Measure"},
	}
	if diff := cmp.Diff(want, e.Steps()); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
}

type fakeAPI struct {
	templates map[string]domain.TemplateDetail
	calls     []string
}

func (f *fakeAPI) Templates(context.Context) ([]domain.Template, error) {
	var out []domain.Template
	for _, d := range f.templates {
		out = append(out, d.Template)
	}
	return out, nil
}

func (f *fakeAPI) Template(_ context.Context, key string) (domain.TemplateDetail, error) {
	f.calls = append(f.calls, "get "+key)
	d, ok := f.templates[key]
	if !ok {
		return domain.TemplateDetail{}, &ftopssdk.APIError{StatusCode: 404, Code: "not_found"}
	}
	return d, nil
}

func (f *fakeAPI) CreateTemplate(_ context.Context, in domain.TemplateInput) (domain.TemplateDetail, error) {
	f.calls = append(f.calls, "create "+in.Key)
	d := domain.TemplateDetail{Template: domain.Template{Key: in.Key, Title: in.Title, Kind: in.Kind, Scope: in.Scope}, Steps: []domain.TemplateStep{}}
	f.templates[in.Key] = d
	return d, nil
}

func (f *fakeAPI) UpdateTemplate(_ context.Context, key string, in domain.TemplateInput) (domain.TemplateDetail, error) {
	f.calls = append(f.calls, "update "+key)
	d := f.templates[key]
	d.Template.Title = in.Title
	f.templates[key] = d
	return d, nil
}

func (f *fakeAPI) DeleteTemplate(_ context.Context, key string) error {
	delete(f.templates, key)
	return nil
}

func (f *fakeAPI) CreateRule(_ context.Context, key string, in domain.RuleInput) (domain.TemplateRule, error) {
	d := f.templates[key]
	r := domain.TemplateRule{ID: "r1", TemplateKey: key, Priority: in.Priority, MatchJSON: in.MatchJSON}
	d.Rules = append(d.Rules, r)
	f.templates[key] = d
	return r, nil
}

func (f *fakeAPI) UpdateRule(context.Context, string, string, domain.RuleInput) (domain.TemplateRule, error) {
	return domain.TemplateRule{}, nil
}

func (f *fakeAPI) DeleteRule(context.Context, string, string) error { return nil }

func (f *fakeAPI) TemplateSteps(_ context.Context, key string) ([]domain.TemplateStep, error) {
	return f.templates[key].Steps, nil
}

func (f *fakeAPI) ReplaceTemplateSteps(_ context.Context, key string, steps []domain.TemplateStep) ([]domain.TemplateStep, error) {
	f.calls = append(f.calls, "steps "+key)
	d := f.templates[key]
	d.Steps = steps
	f.templates[key] = d
	return steps, nil
}

func TestServiceReloadsAfterMutations(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{templates: map[string]domain.TemplateDetail{}}
	p := prefs.NewMemory()
	svc := Service{API: api, Prefs: p}

	d := NewDraft()
	d.Key, d.Title = "kickoff", "Kickoff"
	detail, err := svc.Create(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "kickoff", detail.Template.Key)
	assert.Equal(t, "kickoff", svc.Selected())

	detail, err = svc.AddRule(ctx, "kickoff", NewRuleDraft())
	require.NoError(t, err)
	assert.Len(t, detail.Rules, 1)

	e := NewStepEditor(nil)
	_, _ = e.Add("Call client", "")
	_, _ = e.Add("Send recap", "")
	detail, err = svc.SaveSteps(ctx, "kickoff", e)
	require.NoError(t, err)
	require.Len(t, detail.Steps, 2)
	assert.Equal(t, 2, detail.Steps[1].Position)

	assert.Equal(t, []string{"create kickoff", "get kickoff", "get kickoff", "steps kickoff", "get kickoff"}, api.calls)

	list, err := svc.List(ctx, "kick")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, "kick", svc.Search())

	require.NoError(t, svc.Delete(ctx, "kickoff"))
	assert.Equal(t, "", svc.Selected())

	_, err = svc.Load(ctx, "kickoff")
	assert.Equal(t, "not_found", Message(err, "Failed to load template."))
	assert.Equal(t, "Template key and title are required.", Message(domain.Invalid("Template key and title are required."), ""))
}

func intp(n int) *int { return &n }
