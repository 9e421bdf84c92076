package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ftops/internal/app"
	"ftops/internal/planview"
	"ftops/internal/prefs"
	"ftops/internal/view"
	ftopssdk "ftops/sdk/go"
)

func previewCmd() *cobra.Command {
	var query, selected string
	var ruleIDs bool
	cmd := &cobra.Command{
		Use:   "preview [record-uri]",
		Short: "Preview the plan for a commercial record",
		Long:  "Without an argument the last previewed record URI is used. The URI is remembered for the next run.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				uri, err := planview.ResolveURI(firstArg(args), env.Prefs.RecordURI())
				if err != nil {
					return err
				}
				return runPreview(ctx, env, cmd.OutOrStdout(), uri, planview.Options{Query: query, Selected: selected, ShowRuleIDs: ruleIDs})
			})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "filter deliverables by key, title or group")
	cmd.Flags().StringVar(&selected, "select", "", "show the context of one deliverable key")
	cmd.Flags().BoolVar(&ruleIDs, "rule-ids", false, "show matched rule ids")
	cmd.AddCommand(previewRecordsCmd())
	cmd.AddCommand(previewRecordCmd())
	cmd.AddCommand(previewMaterializeCmd())
	return cmd
}

// runPreview fetches and renders the plan for uri, showing the request snapshot on failure.
func runPreview(ctx context.Context, env *app.Env, w io.Writer, uri string, opts planview.Options) error {
	if err := env.Prefs.Set(ctx, prefs.KeyRecordURI, uri); err != nil {
		return err
	}
	p, res, err := env.Client.PlanPreview(ctx, uri)
	if err != nil {
		if res.Status != 0 && !viper.GetBool("json") {
			_ = view.Snapshot(w, ftopssdk.Snapshot(res, err), 4)
		}
		return err
	}
	return printJSONOrTable(p, func(w io.Writer) error {
		return planview.Render(w, p, opts)
	})
}

func previewMaterializeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materialize [record-uri]",
		Short: "Create (or reuse) the record's project and materialize its tasks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				uri, err := planview.ResolveURI(firstArg(args), env.Prefs.RecordURI())
				if err != nil {
					return err
				}
				created, err := env.Client.ProjectFromRecord(ctx, uri)
				if err != nil {
					return err
				}
				if err := env.Prefs.Set(ctx, prefs.KeyProjectID, created.Project.ID); err != nil {
					return err
				}
				res, err := env.Client.Materialize(ctx, created.Project.ID)
				if err != nil {
					return err
				}
				if err := env.Prefs.SetActiveTab(ctx, prefs.TabProjects); err != nil {
					return err
				}
				out := map[string]any{"project": created.Project, "created": created.Created, "result": res}
				return printJSONOrTable(out, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "project %s\n%s\n", created.Project.ID, planview.MaterializeMessage(res))
					return err
				})
			})
		},
	}
	return cmd
}

func previewRecordsCmd() *cobra.Command {
	var q ftopssdk.RecordQuery
	var pick int
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List commercial records",
		Long: `Lists records newest first. --select N (1-based) stores that record's URI and, with
auto-run enabled (` + prefs.KeyAutoRunPreview + `, default true), previews it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				page, err := env.Client.Records(ctx, q)
				if err != nil {
					return errors.New(planview.RecordsMessage(err))
				}
				if pick == 0 {
					return printJSONOrTable(page, func(w io.Writer) error {
						if len(page.Records) == 0 {
							_, err := fmt.Fprintf(w, "No records. Try %s\n", strings.Join(planview.ExampleURIs, ", "))
							return err
						}
						return view.Records(w, page.Records)
					})
				}
				if pick < 1 || pick > len(page.Records) {
					return fmt.Errorf("--select must be between 1 and %d", len(page.Records))
				}
				uri := page.Records[pick-1].URI
				if !env.Prefs.AutoRunPreview() {
					if err := env.Prefs.Set(ctx, prefs.KeyRecordURI, uri); err != nil {
						return err
					}
					fmt.Println("selected", uri)
					return nil
				}
				return runPreview(ctx, env, cmd.OutOrStdout(), uri, planview.Options{})
			})
		},
	}
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "page offset")
	cmd.Flags().StringVar(&q.Query, "query", "", "search term")
	cmd.Flags().IntVar(&pick, "select", 0, "select the Nth record")
	return cmd
}

func previewRecordCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "record [record-uri]",
		Short: "Show a record with its line items",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				uri, err := planview.ResolveURI(firstArg(args), env.Prefs.RecordURI())
				if err != nil {
					return err
				}
				detail, err := env.Client.Record(ctx, uri)
				if err != nil {
					return err
				}
				return printJSONOrTable(detail, func(w io.Writer) error {
					doc, err := loose(detail)
					if err != nil {
						return err
					}
					return view.Tree(w, doc, depth)
				})
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 2, "tree expansion depth")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
