// Package view renders panel data as text for the CLI and the terminal UI.
package view

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"ftops/internal/admin"
	"ftops/internal/board"
	"ftops/internal/demo"
	"ftops/internal/domain"
	"ftops/internal/fetch"
	"ftops/internal/jsontree"
	"ftops/internal/templates"
)

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(header))
	return tw
}

func flush(w io.Writer, tw table.Writer) error {
	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

// Status colours a task status.
func Status(s string) string {
	switch s {
	case domain.StatusDone:
		return text.FgGreen.Sprint(s)
	case domain.StatusDoing:
		return text.FgCyan.Sprint(s)
	case domain.StatusBlocked:
		return text.FgRed.Sprint(s)
	case domain.StatusCanceled:
		return text.Faint.Sprint(s)
	default:
		return s
	}
}

func yesNo(b domain.Flag) string {
	if b {
		return "yes"
	}
	return "no"
}

// Tree renders v expanded to depth; a negative depth expands everything.
func Tree(w io.Writer, v any, depth int) error {
	root := jsontree.Build(v)
	root.ExpandToDepth(depth)
	return jsontree.Render(w, root)
}

// Snapshot writes the request metadata followed by the error, text or JSON tree.
func Snapshot(w io.Writer, s fetch.Snapshot, depth int) error {
	var meta []string
	if s.Status != 0 {
		meta = append(meta, fmt.Sprintf("status %d", s.Status))
	}
	if s.DurationMs != 0 || s.Status != 0 {
		meta = append(meta, fmt.Sprintf("%d ms", s.DurationMs))
	}
	if s.URL != "" {
		meta = append(meta, s.URL)
	}
	if len(meta) > 0 {
		fmt.Fprintln(w, text.Faint.Sprint(strings.Join(meta, " · ")))
	}
	switch s.State() {
	case fetch.StateError:
		fmt.Fprintln(w, text.FgRed.Sprint(s.Error))
		if s.Text != "" {
			fmt.Fprintln(w, s.Text)
		}
	case fetch.StateText:
		if s.Error != "" {
			fmt.Fprintln(w, text.FgYellow.Sprint(s.Error))
		}
		fmt.Fprintln(w, s.Text)
	case fetch.StateJSON:
		return Tree(w, s.Data, depth)
	default:
		fmt.Fprintln(w, "No response yet.")
	}
	return nil
}

// Records writes the commercial record list.
func Records(w io.Writer, list []domain.CommercialRecord) error {
	tw := newTable("#", "URI", "Customer", "Delivery", "Install", "Last seen")
	for i, r := range list {
		tw.AppendRow(table.Row{i + 1, r.URI, r.CustomerDisplay, r.QuotedDeliveryDate, r.QuotedInstallDate, r.LastSeenAt})
	}
	return flush(w, tw)
}

// Events writes the ingestion event table.
func Events(w io.Writer, list []domain.Event) error {
	tw := newTable("#", "Source", "Type", "External ID", "Received", "Processed", "Error")
	for i, e := range list {
		tw.AppendRow(table.Row{i, e.Source, e.Type, e.ExternalID, e.ReceivedAt, e.ProcessedAt, e.ProcessError})
	}
	return flush(w, tw)
}

// Scenarios writes the demo scenario library with the selection marked.
func Scenarios(w io.Writer, selected string) error {
	tw := newTable("", "ID", "Name", "Base external id", "Strategies")
	for _, s := range demo.Scenarios {
		mark := ""
		if s.ID == selected {
			mark = "*"
		}
		strategies := make([]string, len(s.Strategies))
		for i, st := range s.Strategies {
			strategies[i] = string(st)
		}
		tw.AppendRow(table.Row{mark, s.ID, s.Name, s.BaseExternalID, strings.Join(strategies, ",")})
	}
	return flush(w, tw)
}

// DemoState writes the generator settings.
func DemoState(w io.Writer, st demo.State) error {
	sc := st.Scenario()
	fmt.Fprintf(w, "scenario: %s (%s)\n", sc.ID, sc.Name)
	fmt.Fprintf(w, "base external id: %s\n", st.BaseExternalID)
	fmt.Fprintf(w, "id strategy: %s\n", st.IDStrategy)
	if sc.HasVariant {
		fmt.Fprintf(w, "variant: %s\n", st.Variant())
	}
	fmt.Fprintf(w, "counter: %d\n", st.Counters[sc.ID])
	fmt.Fprintf(w, "repeat count: %d  delay: %d ms\n", st.RepeatCount, st.DelayMs)
	if err := st.PayloadError(); err != nil {
		fmt.Fprintln(w, text.FgRed.Sprint(err.Error()))
	}
	return nil
}

// DemoLog writes the rolling result log, newest first.
func DemoLog(w io.Writer, entries []demo.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No events sent yet.")
		return err
	}
	tw := newTable("Time", "Scenario", "External ID", "Status", "Idempotency key", "Result")
	for _, e := range entries {
		result := "ok"
		switch {
		case e.Error != "":
			result = text.FgRed.Sprint(e.Error)
		case e.Duplicate:
			result = text.FgYellow.Sprint("duplicate")
		}
		status := ""
		if e.Status != 0 {
			status = fmt.Sprint(e.Status)
		}
		tw.AppendRow(table.Row{e.Time, e.ScenarioID, e.ExternalID, status, e.IdempotencyKey, result})
	}
	return flush(w, tw)
}

// Templates writes the template list with the selection marked.
func Templates(w io.Writer, list []domain.Template, selected string) error {
	tw := newTable("", "Key", "Title", "Kind", "Scope", "Active")
	for _, t := range list {
		mark := ""
		if t.Key == selected {
			mark = "*"
		}
		tw.AppendRow(table.Row{mark, t.Key, t.Title, t.Kind, t.Scope, yesNo(t.IsActive)})
	}
	return flush(w, tw)
}

// TemplateDetail writes one template with its rules and steps.
func TemplateDetail(w io.Writer, d domain.TemplateDetail) error {
	t := d.Template
	fmt.Fprintf(w, "%s  %s\n", t.Key, t.Title)
	fmt.Fprintf(w, "kind: %s  scope: %s  active: %s\n", t.Kind, t.Scope, yesNo(t.IsActive))
	if t.CategoryKey != "" || t.DeliverableKey != "" {
		fmt.Fprintf(w, "category: %s  deliverable: %s\n", t.CategoryKey, t.DeliverableKey)
	}
	if t.DefaultPosition != nil {
		fmt.Fprintf(w, "default position: %d\n", *t.DefaultPosition)
	}
	if t.DefaultStateJSON != "" {
		fmt.Fprintf(w, "default state: %s\n", t.DefaultStateJSON)
	}

	fmt.Fprintln(w, "\nRules")
	rt := newTable("ID", "Priority", "Attach to", "Match", "Active")
	for _, r := range templates.SortRules(d.Rules) {
		rt.AppendRow(table.Row{r.ID, r.Priority, templates.AttachTo(r.MatchJSON), r.MatchJSON, yesNo(r.IsActive)})
	}
	if err := flush(w, rt); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nSteps")
	st := newTable("Pos", "Title", "Description")
	for _, s := range d.Steps {
		st.AppendRow(table.Row{s.Position, s.Title, s.Description})
	}
	return flush(w, st)
}

// Projects writes the project list with the selection marked.
func Projects(w io.Writer, list []domain.Project, selected string) error {
	tw := newTable("", "ID", "Title", "Status", "Record")
	for _, p := range list {
		mark := ""
		if p.ID == selected {
			mark = "*"
		}
		tw.AppendRow(table.Row{mark, p.ID, p.Title, p.Status, p.CommercialRecordURI})
	}
	return flush(w, tw)
}

func taskRows(tw table.Writer, tasks []domain.Task) {
	for _, t := range tasks {
		pos := ""
		if t.Position != nil {
			pos = fmt.Sprint(*t.Position)
		}
		tw.AppendRow(table.Row{t.ID, pos, t.Title, t.TemplateKey, Status(t.Status)})
	}
}

// Board writes the grouped task board.
func Board(w io.Writer, p domain.Project, b board.Board) error {
	fmt.Fprintf(w, "%s  %s  (%d tasks)\n", p.Title, Status(p.Status), b.Len())
	section := func(title string, tasks []domain.Task) error {
		fmt.Fprintf(w, "\n%s\n", title)
		tw := newTable("ID", "Pos", "Title", "Template", "Status")
		taskRows(tw, tasks)
		return flush(w, tw)
	}
	if len(b.Project) > 0 {
		if err := section("Project", b.Project); err != nil {
			return err
		}
	}
	for _, g := range b.Shared {
		if err := section("Shared · "+g.Label(), g.Tasks); err != nil {
			return err
		}
	}
	for _, g := range b.Deliverable {
		if err := section("Deliverable · "+g.Label(), g.Tasks); err != nil {
			return err
		}
	}
	if b.Len() == 0 {
		fmt.Fprintln(w, "No tasks.")
	}
	return nil
}

// Notes writes a task's notes oldest first.
func Notes(w io.Writer, notes []domain.TaskNote) error {
	if len(notes) == 0 {
		_, err := fmt.Fprintln(w, "No notes.")
		return err
	}
	for _, n := range notes {
		fmt.Fprintf(w, "%s  %s\n  %s\n", text.Faint.Sprint(n.CreatedAt), n.AuthorEmail, n.Body)
	}
	return nil
}

// Workspaces writes the workspace list with the selection marked.
func Workspaces(w io.Writer, list []domain.Workspace, selected string) error {
	tw := newTable("", "ID", "Slug", "Name", "Updated")
	for _, ws := range list {
		mark := ""
		if ws.ID == selected {
			mark = "*"
		}
		tw.AppendRow(table.Row{mark, ws.ID, ws.Slug, ws.Name, ws.UpdatedAt})
	}
	return flush(w, tw)
}

// Integrations writes the integration list and the webhook endpoints to configure.
func Integrations(w io.Writer, list []domain.Integration) error {
	tw := newTable("ID", "Provider", "Env", "Account", "Name", "Secrets key", "Active")
	for _, it := range list {
		tw.AppendRow(table.Row{it.ID, it.Provider, it.Environment, it.ExternalAccountID, it.DisplayName, it.SecretsKeyID, yesNo(it.IsActive)})
	}
	if err := flush(w, tw); err != nil {
		return err
	}
	for _, h := range admin.WebhookHints {
		fmt.Fprintf(w, "%s webhook: %s\n", h.Label, h.URL)
	}
	return nil
}

// IngestRequests writes the ingest request list.
func IngestRequests(w io.Writer, list []domain.IngestRequest) error {
	tw := newTable("ID", "Received", "Provider", "Env", "Topic", "Shop", "Integration", "Verified", "Error")
	for _, r := range list {
		verified := text.FgGreen.Sprint("yes")
		if !r.SignatureVerified {
			verified = text.FgRed.Sprint("no")
		}
		integration := r.IntegrationDisplayName
		if integration == "" {
			integration = r.IntegrationID
		}
		tw.AppendRow(table.Row{r.ID, r.ReceivedAt, r.Provider, r.Environment, r.Topic, r.ShopDomain, integration, verified, r.VerifyError})
	}
	return flush(w, tw)
}

// Health writes the migration drift status.
func Health(w io.Writer, h domain.MigrationHealth) error {
	if h.OK {
		_, err := fmt.Fprintf(w, "migrations ok (latest %s)\n", h.AppliedLatest)
		return err
	}
	fmt.Fprintln(w, text.FgYellow.Sprint(MigrationBanner(h)))
	for _, m := range h.Missing {
		fmt.Fprintf(w, "  missing: %s\n", m)
	}
	return nil
}

// MigrationBanner is the one-line drift warning shown in dev mode.
func MigrationBanner(h domain.MigrationHealth) string {
	return fmt.Sprintf("Migrations behind: applied %s, expected %s (%d missing).", h.AppliedLatest, h.ExpectedLatest, h.MissingCount)
}

// Prefs writes every stored preference, sorted by key.
func Prefs(w io.Writer, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := newTable("Key", "Value")
	for _, k := range keys {
		v := values[k]
		if len(v) > 80 {
			v = v[:77] + "..."
		}
		tw.AppendRow(table.Row{k, v})
	}
	return flush(w, tw)
}
