package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ftops/internal/admin"
	"ftops/internal/app"
	"ftops/internal/domain"
	"ftops/internal/view"
)

func integrationsCmd() *cobra.Command {
	i := &cobra.Command{Use: "integrations", Short: "Manage provider integrations of the selected workspace"}
	i.AddCommand(integrationsListCmd())
	i.AddCommand(integrationsCreateCmd())
	i.AddCommand(integrationsToggleCmd())
	i.AddCommand(integrationsRotateCmd())
	i.AddCommand(integrationsRenameCmd())
	i.AddCommand(integrationsDeleteCmd())
	i.AddCommand(integrationsHintsCmd())
	return i
}

func withIntegrations(cmd *cobra.Command, fn func(context.Context, admin.Integrations) error) error {
	return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
		return fn(ctx, admin.Integrations{API: env.Client, Prefs: env.Prefs})
	})
}

// findIntegration looks id up in the selected workspace.
func findIntegration(ctx context.Context, svc admin.Integrations, id string) (domain.Integration, error) {
	list, err := svc.List(ctx)
	if err != nil {
		return domain.Integration{}, err
	}
	for _, it := range list {
		if it.ID == id {
			return it, nil
		}
	}
	return domain.Integration{}, fmt.Errorf("integration %q not found in the selected workspace", id)
}

func printIntegration(it domain.Integration) error {
	return printJSONOrTable(it, func(w io.Writer) error {
		return view.Integrations(w, []domain.Integration{it})
	})
}

func integrationsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIntegrations(cmd, func(ctx context.Context, svc admin.Integrations) error {
				list, err := svc.List(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(list, func(w io.Writer) error {
					return view.Integrations(w, list)
				})
			})
		},
	}
	return cmd
}

func integrationsCreateCmd() *cobra.Command {
	d := admin.NewIntegrationDraft()
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIntegrations(cmd, func(ctx context.Context, svc admin.Integrations) error {
				it, err := svc.Create(ctx, d)
				if err != nil {
					return err
				}
				return printIntegration(it)
			})
		},
	}
	cmd.Flags().StringVar(&d.Provider, "provider", d.Provider, "provider (shopify or qbo)")
	cmd.Flags().StringVar(&d.Environment, "env", d.Environment, "environment (production or sandbox)")
	cmd.Flags().StringVar(&d.ExternalAccountID, "account", "", "external account id (shop domain or realm id)")
	cmd.Flags().StringVar(&d.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&d.Secret, "secret", "", "webhook secret or verifier token")
	return cmd
}

func integrationsToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Activate or deactivate an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIntegrations(cmd, func(ctx context.Context, svc admin.Integrations) error {
				it, err := findIntegration(ctx, svc, args[0])
				if err != nil {
					return err
				}
				if it, err = svc.ToggleActive(ctx, it); err != nil {
					return err
				}
				return printIntegration(it)
			})
		},
	}
	return cmd
}

func integrationsRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate <id> <secret>",
		Short: "Replace an integration's secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIntegrations(cmd, func(ctx context.Context, svc admin.Integrations) error {
				it, err := findIntegration(ctx, svc, args[0])
				if err != nil {
					return err
				}
				if it, err = svc.RotateSecret(ctx, it, args[1]); err != nil {
					return err
				}
				return printIntegration(it)
			})
		},
	}
	return cmd
}

func integrationsRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Set an integration's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIntegrations(cmd, func(ctx context.Context, svc admin.Integrations) error {
				it, err := findIntegration(ctx, svc, args[0])
				if err != nil {
					return err
				}
				if it, err = svc.Rename(ctx, it, args[1]); err != nil {
					return err
				}
				return printIntegration(it)
			})
		},
	}
	return cmd
}

func integrationsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIntegrations(cmd, func(ctx context.Context, svc admin.Integrations) error {
				if err := svc.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func integrationsHintsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hints",
		Short: "Show the webhook endpoints to configure at each provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSONOrTable(admin.WebhookHints, func(w io.Writer) error {
				for _, h := range admin.WebhookHints {
					fmt.Fprintf(w, "%s: %s\n", h.Label, h.URL)
				}
				return nil
			})
		},
	}
	return cmd
}

func ingestCmd() *cobra.Command {
	i := &cobra.Command{Use: "ingest", Short: "Browse raw webhook ingest requests"}
	i.AddCommand(ingestListCmd())
	i.AddCommand(ingestShowCmd())
	return i
}

func ingestListCmd() *cobra.Command {
	var provider, environment string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingest requests of the selected workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				svc := admin.Ingest{API: env.Client, Prefs: env.Prefs}
				f := svc.DefaultFilter()
				if cmd.Flags().Changed("provider") {
					f.Provider = provider
				}
				if cmd.Flags().Changed("env") {
					f.Environment = environment
				}
				f.Limit = limit
				list, err := svc.List(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(list, func(w io.Writer) error {
					return view.IngestRequests(w, list)
				})
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "shopify", "provider")
	cmd.Flags().StringVar(&environment, "env", "production", "environment")
	cmd.Flags().IntVar(&limit, "limit", admin.IngestLimit, "page size")
	return cmd
}

func ingestShowCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one ingest request with headers and body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				d, err := admin.Ingest{API: env.Client, Prefs: env.Prefs}.Detail(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d, func(w io.Writer) error {
					return view.Tree(w, map[string]any(d), depth)
				})
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 2, "tree expansion depth")
	return cmd
}

func workspacesCmd() *cobra.Command {
	w := &cobra.Command{Use: "workspaces", Short: "Manage workspaces"}
	w.AddCommand(workspacesListCmd())
	w.AddCommand(workspacesUseCmd())
	w.AddCommand(workspacesCreateCmd())
	w.AddCommand(workspacesUpdateCmd())
	w.AddCommand(workspacesDeleteCmd())
	return w
}

func withWorkspaces(cmd *cobra.Command, fn func(context.Context, admin.Workspaces) error) error {
	return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
		return fn(ctx, admin.Workspaces{API: env.Client, Prefs: env.Prefs})
	})
}

func printWorkspace(ws domain.Workspace, selected string) error {
	return printJSONOrTable(ws, func(w io.Writer) error {
		return view.Workspaces(w, []domain.Workspace{ws}, selected)
	})
}

func workspacesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspaces(cmd, func(ctx context.Context, svc admin.Workspaces) error {
				list, selected, err := svc.List(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(list, func(w io.Writer) error {
					return view.Workspaces(w, list, selected)
				})
			})
		},
	}
	return cmd
}

func workspacesUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id-or-slug>",
		Short: "Select the workspace used by integrations and ingest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspaces(cmd, func(ctx context.Context, svc admin.Workspaces) error {
				ws, err := svc.Use(ctx, args[0])
				if err != nil {
					return err
				}
				return printWorkspace(ws, ws.ID)
			})
		},
	}
	return cmd
}

func workspacesCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <slug> <name>",
		Short: "Create a workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspaces(cmd, func(ctx context.Context, svc admin.Workspaces) error {
				ws, err := svc.Create(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printWorkspace(ws, "")
			})
		},
	}
	return cmd
}

func workspacesUpdateCmd() *cobra.Command {
	var slug, name string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a workspace or change its slug",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspaces(cmd, func(ctx context.Context, svc admin.Workspaces) error {
				list, selected, err := svc.List(ctx)
				if err != nil {
					return err
				}
				for _, target := range list {
					if target.ID != args[0] {
						continue
					}
					ws, err := svc.Update(ctx, target, slug, name)
					if err != nil {
						return err
					}
					return printWorkspace(ws, selected)
				}
				return fmt.Errorf("workspace %q not found", args[0])
			})
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "new slug")
	cmd.Flags().StringVar(&name, "name", "", "new name")
	return cmd
}

func workspacesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a workspace",
		Long:  "Deletion is refused while the workspace still owns integrations, projects or templates.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspaces(cmd, func(ctx context.Context, svc admin.Workspaces) error {
				if err := svc.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}
