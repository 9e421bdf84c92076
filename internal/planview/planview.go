// Package planview turns a plan preview into the summary and context views shown by the console.
package planview

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"ftops/internal/domain"
	ftopssdk "ftops/sdk/go"
)

// ExampleURIs are offered when no record URI has been entered yet.
var ExampleURIs = []string{
	"manual://proposal/demo",
	"shopify://order/example",
	"qbo://invoice/example",
}

// ErrURIRequired is returned before any request when the record URI is blank.
var ErrURIRequired = errors.New("Record URI is required.")

// SchemaNotInstalled replaces the commercial_schema_not_installed error in the record list.
const SchemaNotInstalled = "Commercial schema is not installed in this environment yet."

// RecordsMessage renders a record-list failure.
func RecordsMessage(err error) string {
	if ftopssdk.IsCode(err, "commercial_schema_not_installed") {
		return SchemaNotInstalled
	}
	var apiErr *ftopssdk.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Friendly("Failed to load commercial records.")
	}
	return err.Error()
}

// ResolveURI picks the argument, else the stored URI.
func ResolveURI(arg, stored string) (string, error) {
	uri := strings.TrimSpace(arg)
	if uri == "" {
		uri = strings.TrimSpace(stored)
	}
	if uri == "" {
		return "", ErrURIRequired
	}
	return uri, nil
}

// MaterializeMessage reports the outcome of a materialize call.
func MaterializeMessage(r domain.MaterializeResult) string {
	if r.AlreadyMaterialized {
		return "Already materialized (no changes)."
	}
	return fmt.Sprintf("Created %d tasks.", r.TasksCreated)
}

// Summary is the headline of a preview.
type Summary struct {
	PlanID       string
	Warnings     []string
	HasProject   bool
	Shared       int
	Deliverables int
	Matches      int
}

func Summarize(p domain.PlanPreview) Summary {
	s := Summary{PlanID: p.PlanID, Warnings: p.Warnings}
	if p.Contexts != nil {
		s.HasProject = p.Contexts.Project != nil
		s.Shared = len(p.Contexts.Shared)
		s.Deliverables = len(p.Contexts.Deliverables)
	}
	for _, m := range p.MatchedTemplatesByContext {
		s.Matches += len(m)
	}
	return s
}

// Shorten keeps the head and tail of long keys.
func Shorten(s string) string {
	r := []rune(s)
	if len(r) <= 36 {
		return s
	}
	return string(r[:18]) + "…" + string(r[len(r)-14:])
}

// FilterDeliverables returns deliverables whose key, title, category, deliverable key, group key
// or matched templates contain query, case-insensitively. A blank query returns all of them.
func FilterDeliverables(p domain.PlanPreview, query string) []domain.DeliverableContext {
	if p.Contexts == nil {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return p.Contexts.Deliverables
	}
	var out []domain.DeliverableContext
	for _, d := range p.Contexts.Deliverables {
		parts := []string{d.Key, d.Title, d.CategoryKey, d.DeliverableKey, d.GroupKey}
		for _, m := range p.Matches(domain.ScopeDeliverable, d.Key) {
			parts = append(parts, m.TemplateKey, m.Title)
		}
		if strings.Contains(strings.ToLower(strings.Join(parts, " ")), q) {
			out = append(out, d)
		}
	}
	return out
}

// TitleLookup maps line item URIs to deliverable titles.
type TitleLookup map[string]string

// Lookup indexes the deliverable titles of a preview. The board uses it to label task groups.
func Lookup(p domain.PlanPreview) TitleLookup {
	out := TitleLookup{}
	if p.Contexts == nil {
		return out
	}
	for _, d := range p.Contexts.Deliverables {
		if d.LineItemURI != "" && d.Title != "" {
			out[d.LineItemURI] = d.Title
		}
	}
	return out
}

// Options control the context viewer.
type Options struct {
	Query       string
	Selected    string
	ShowRuleIDs bool
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func orUntitled(s string) string {
	if s == "" {
		return "Untitled"
	}
	return s
}

// Render writes the context viewer. It writes nothing when the preview has no project context.
func Render(w io.Writer, p domain.PlanPreview, opts Options) error {
	if p.Contexts == nil || p.Contexts.Project == nil {
		return nil
	}
	var b strings.Builder
	c := p.Contexts

	b.WriteString("Project\n")
	pc := c.Project
	fmt.Fprintf(&b, "  [project] %s", Shorten(pc.Key))
	if pc.CustomerDisplay != "" {
		fmt.Fprintf(&b, "  %s", pc.CustomerDisplay)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "    record_uri: %s\n", pc.RecordURI)
	fmt.Fprintf(&b, "    quoted_delivery_date: %s\n", orNA(pc.QuotedDeliveryDate))
	fmt.Fprintf(&b, "    quoted_install_date: %s\n", orNA(pc.QuotedInstallDate))
	fmt.Fprintf(&b, "    snapshot_hash: %s\n", orNA(pc.SnapshotHash))
	writeMatches(&b, p.Matches(domain.ScopeProject, pc.Key), opts.ShowRuleIDs)

	b.WriteString("\nShared\n")
	if len(c.Shared) == 0 {
		b.WriteString("  No shared contexts.\n")
	}
	for _, s := range c.Shared {
		fmt.Fprintf(&b, "  [shared] %s  %d line items\n", Shorten(s.Key), len(s.LineItems))
		fmt.Fprintf(&b, "    group_key: %s\n", s.GroupKey)
		fmt.Fprintf(&b, "    requiresSamples: %t\n", s.Derived.RequiresSamples)
		fmt.Fprintf(&b, "    installRequired: %t\n", s.Derived.InstallRequired)
		fmt.Fprintf(&b, "    deliveryRequired: %t\n", s.Derived.DeliveryRequired)
		for _, li := range s.LineItems {
			fmt.Fprintf(&b, "    - %s %s (%s/%s)\n", Shorten(li.LineItemURI), orUntitled(li.Title), li.CategoryKey, li.DeliverableKey)
		}
		writeMatches(&b, p.Matches(domain.ScopeShared, s.Key), opts.ShowRuleIDs)
	}

	b.WriteString("\nDeliverables\n")
	list := FilterDeliverables(p, opts.Query)
	if len(list) == 0 {
		b.WriteString("  No deliverable contexts match.\n")
	}
	for _, d := range list {
		marker := " "
		if opts.Selected == d.Key {
			marker = "*"
		}
		fmt.Fprintf(&b, " %s[deliverable] %s  %s  %s/%s", marker, Shorten(d.Key), orUntitled(d.Title), d.CategoryKey, d.DeliverableKey)
		if d.GroupKey != "" {
			fmt.Fprintf(&b, "  group: %s", d.GroupKey)
		}
		b.WriteString("\n")
		qty := 0.0
		if d.Quantity != nil {
			qty = *d.Quantity
		}
		fmt.Fprintf(&b, "    quantity: %g\n", qty)
		pos := "n/a"
		if d.Position != nil {
			pos = fmt.Sprint(*d.Position)
		}
		fmt.Fprintf(&b, "    position: %s\n", pos)
		fmt.Fprintf(&b, "    config_hash: %s\n", orNA(d.ConfigHash))
		if d.ConfigParseError != "" {
			fmt.Fprintf(&b, "    config error: %s\n", d.ConfigParseError)
		}
		if d.Config != nil {
			raw, _ := json.MarshalIndent(d.Config, "    ", "  ")
			fmt.Fprintf(&b, "    %s\n", raw)
		}
		if opts.Selected != "" && opts.Selected != d.Key {
			b.WriteString("    Select to view matches.\n")
			continue
		}
		writeMatches(&b, p.Matches(domain.ScopeDeliverable, d.Key), opts.ShowRuleIDs)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeMatches(b *strings.Builder, matches []domain.MatchedTemplate, showRuleIDs bool) {
	if len(matches) == 0 {
		b.WriteString("    No matching templates.\n")
		return
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	header := table.Row{"Template", "Key", "Priority"}
	if showRuleIDs {
		header = append(header, "Rule")
	}
	t.AppendHeader(header)
	for _, m := range matches {
		title := m.Title
		if title == "" {
			title = m.TemplateKey
		}
		row := table.Row{title, m.TemplateKey, m.RulePriority}
		if showRuleIDs {
			row = append(row, m.RuleID)
		}
		t.AppendRow(row)
	}
	for _, line := range strings.Split(t.Render(), "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}
