package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ftops/internal/app"
	"ftops/internal/board"
	"ftops/internal/domain"
	"ftops/internal/planview"
	"ftops/internal/prefs"
	"ftops/internal/view"
)

func projectsCmd() *cobra.Command {
	p := &cobra.Command{Use: "projects", Short: "Track projects and their tasks"}
	p.AddCommand(projectsListCmd())
	p.AddCommand(projectsShowCmd())
	p.AddCommand(projectsFromRecordCmd())
	p.AddCommand(projectsMaterializeCmd())
	p.AddCommand(taskCmd())
	return p
}

func projectArg(args []string, p *prefs.Prefs) (string, error) {
	if id := firstArg(args); id != "" {
		return id, nil
	}
	if id := p.ProjectID(); id != "" {
		return id, nil
	}
	return "", domain.Invalid("Select a project first.")
}

func projectsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				list, err := env.Client.Projects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(list, func(w io.Writer) error {
					return view.Projects(w, list, env.Prefs.ProjectID())
				})
			})
		},
	}
	return cmd
}

// deliverableTitles reads group titles from the record's plan preview. Failures leave keys untitled.
func deliverableTitles(ctx context.Context, env *app.Env, p domain.Project) map[string]string {
	if p.CommercialRecordURI == "" {
		return nil
	}
	preview, _, err := env.Client.PlanPreview(ctx, p.CommercialRecordURI)
	if err != nil {
		env.Logger.Debug("board titles unavailable", zap.String("project", p.ID), zap.Error(err))
		return nil
	}
	return planview.Lookup(preview)
}

func projectsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [project-id]",
		Short: "Show a project's task board",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				id, err := projectArg(args, env.Prefs)
				if err != nil {
					return err
				}
				svc := board.NewService(env.Client, env.Prefs)
				p, tasks, err := svc.Select(ctx, id)
				if err != nil {
					return err
				}
				out := map[string]any{"project": p, "tasks": tasks}
				return printJSONOrTable(out, func(w io.Writer) error {
					return view.Board(w, p, board.Build(tasks, deliverableTitles(ctx, env, p)))
				})
			})
		},
	}
	return cmd
}

func projectsFromRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "from-record [record-uri]",
		Short: "Create or reuse the project of a record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				uri, err := planview.ResolveURI(firstArg(args), env.Prefs.RecordURI())
				if err != nil {
					return err
				}
				res, err := env.Client.ProjectFromRecord(ctx, uri)
				if err != nil {
					return err
				}
				if err := env.Prefs.Set(ctx, prefs.KeyProjectID, res.Project.ID); err != nil {
					return err
				}
				return printJSONOrTable(res, func(w io.Writer) error {
					verb := "reused"
					if res.Created {
						verb = "created"
					}
					_, err := fmt.Fprintf(w, "%s project %s (%s)\n", verb, res.Project.ID, res.Project.Title)
					return err
				})
			})
		},
	}
	return cmd
}

func projectsMaterializeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materialize [project-id]",
		Short: "Create the project's tasks from its plan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				id, err := projectArg(args, env.Prefs)
				if err != nil {
					return err
				}
				res, err := env.Client.Materialize(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(res, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, planview.MaterializeMessage(res))
					return err
				})
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Update tasks and their notes"}
	t.AddCommand(taskStatusCmd())
	t.AddCommand(taskNotesCmd())
	t.AddCommand(taskNoteAddCmd())
	return t
}

func taskStatusCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "status <task-id> <todo|doing|blocked|done|canceled>",
		Short: "Change a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				pid, err := projectArg([]string{projectID}, env.Prefs)
				if err != nil {
					return err
				}
				svc := board.NewService(env.Client, env.Prefs)
				tasks, err := svc.SetStatus(ctx, pid, args[0], args[1])
				if err != nil {
					return err
				}
				p, err := env.Client.Project(ctx, pid)
				if err != nil {
					return err
				}
				return printJSONOrTable(tasks, func(w io.Writer) error {
					return view.Board(w, p, board.Build(tasks, deliverableTitles(ctx, env, p)))
				})
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id (default: the selected project)")
	return cmd
}

func taskNotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes <task-id>",
		Short: "List a task's notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				notes, err := board.NewService(env.Client, env.Prefs).Notes(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(notes, func(w io.Writer) error {
					return view.Notes(w, notes)
				})
			})
		},
	}
	return cmd
}

func taskNoteAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note <task-id> <body>",
		Short: "Add a note to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				notes, err := board.NewService(env.Client, env.Prefs).AddNote(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(notes, func(w io.Writer) error {
					return view.Notes(w, notes)
				})
			})
		},
	}
	return cmd
}
