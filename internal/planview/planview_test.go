package planview

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftops/internal/domain"
	ftopssdk "ftops/sdk/go"
)

func samplePreview() domain.PlanPreview {
	qty := 2.0
	return domain.PlanPreview{
		PlanID:   "plan_1",
		Warnings: []string{"deliverable::li-2 has no matching templates"},
		Contexts: &domain.PlanContexts{
			Project: &domain.ProjectContext{Type: "project", Key: "manual://proposal/demo", RecordURI: "manual://proposal/demo", CustomerDisplay: "Jane Smith"},
			Shared: []domain.SharedContext{{
				Type: "shared", Key: "kitchen", GroupKey: "kitchen",
				LineItems: []domain.SharedLineItem{{LineItemURI: "li-1", Title: "Upper cabinets"}},
			}},
			Deliverables: []domain.DeliverableContext{
				{Type: "deliverable", Key: "li-1", LineItemURI: "li-1", Title: "Upper cabinets", CategoryKey: "cabinetry", DeliverableKey: "uppers", GroupKey: "kitchen", Quantity: &qty},
				{Type: "deliverable", Key: "li-2", LineItemURI: "li-2", Title: "Dining table", CategoryKey: "furniture", DeliverableKey: "table"},
			},
		},
		MatchedTemplatesByContext: map[string][]domain.MatchedTemplate{
			"project::manual://proposal/demo": {{TemplateKey: "kickoff", Title: "Kickoff call", RulePriority: 100, RuleID: "rule_a"}},
			"deliverable::li-2":               {{TemplateKey: "finish-sample", Title: "Finish sample", RulePriority: 50, RuleID: "rule_b"}},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(samplePreview())
	want := Summary{PlanID: "plan_1", Warnings: []string{"deliverable::li-2 has no matching templates"}, HasProject: true, Shared: 1, Deliverables: 2, Matches: 2}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterDeliverables(t *testing.T) {
	p := samplePreview()
	assert.Len(t, FilterDeliverables(p, ""), 2)
	assert.Len(t, FilterDeliverables(p, "  "), 2)

	got := FilterDeliverables(p, "KITCHEN")
	require.Len(t, got, 1)
	assert.Equal(t, "li-1", got[0].Key)

	// matched template titles count as searchable text
	got = FilterDeliverables(p, "finish sample")
	require.Len(t, got, 1)
	assert.Equal(t, "li-2", got[0].Key)

	assert.Empty(t, FilterDeliverables(p, "nothing"))
	assert.Nil(t, FilterDeliverables(domain.PlanPreview{}, "x"))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", Shorten("short"))
	long := "shopify://order/1234567890/line_item/abcdefghijkl"
	got := Shorten(long)
	assert.Equal(t, long[:18]+"…"+long[len(long)-14:], got)
	assert.Equal(t, 33, len([]rune(got)))
}

func TestResolveURI(t *testing.T) {
	_, err := ResolveURI(" ", "")
	assert.ErrorIs(t, err, ErrURIRequired)

	uri, err := ResolveURI("", "qbo://invoice/example")
	require.NoError(t, err)
	assert.Equal(t, "qbo://invoice/example", uri)

	uri, err = ResolveURI("manual://proposal/x", "qbo://invoice/example")
	require.NoError(t, err)
	assert.Equal(t, "manual://proposal/x", uri)
}

func TestRenderSelectionHidesOtherMatches(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, samplePreview(), Options{Selected: "li-1", ShowRuleIDs: true}))
	out := buf.String()
	assert.Contains(t, out, "Jane Smith")
	assert.Contains(t, out, "rule_a")
	assert.Contains(t, out, "Select to view matches.")
	assert.NotContains(t, out, "finish-sample")
	assert.Contains(t, out, "quantity: 2")
	assert.Contains(t, out, "quoted_delivery_date: n/a")
}

func TestRenderWithoutProjectWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, domain.PlanPreview{}, Options{}))
	assert.Empty(t, buf.String())
}

func TestLookup(t *testing.T) {
	l := Lookup(samplePreview())
	assert.Equal(t, "Dining table", l["li-2"])
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Already materialized (no changes).", MaterializeMessage(domain.MaterializeResult{AlreadyMaterialized: true}))
	assert.Equal(t, "Created 3 tasks.", MaterializeMessage(domain.MaterializeResult{TasksCreated: 3}))

	err := &ftopssdk.APIError{StatusCode: 500, Code: "commercial_schema_not_installed"}
	assert.Equal(t, SchemaNotInstalled, RecordsMessage(err))
	assert.Equal(t, "Failed to load commercial records.", RecordsMessage(&ftopssdk.APIError{StatusCode: 500}))
	assert.Equal(t, "boom", RecordsMessage(errors.New("boom")))
}
