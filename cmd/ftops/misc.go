package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ftops/internal/app"
	"ftops/internal/config"
	"ftops/internal/console"
	"ftops/internal/demo"
	"ftops/internal/prefs"
	"ftops/internal/view"
)

func prefsCmd() *cobra.Command {
	p := &cobra.Command{Use: "prefs", Short: "Inspect stored console preferences"}
	p.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				all := env.Prefs.All()
				return printJSONOrTable(all, func(w io.Writer) error {
					return view.Prefs(w, all)
				})
			})
		},
	})
	p.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				v, ok := env.Prefs.Get(args[0])
				if !ok {
					return fmt.Errorf("%s is not set", args[0])
				}
				fmt.Println(v)
				return nil
			})
		},
	})
	p.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !knownPref(args[0]) {
				return fmt.Errorf("unknown preference %q", args[0])
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				return env.Prefs.Set(ctx, args[0], args[1])
			})
		},
	})
	p.AddCommand(&cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				return env.Prefs.Unset(ctx, args[0])
			})
		},
	})
	return p
}

func knownPref(key string) bool {
	for _, k := range prefs.Known {
		if k == key {
			return true
		}
	}
	return false
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the API and its migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				h, ok, err := env.Client.Health(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("health response carries no migration status")
				}
				return printJSONOrTable(h, func(w io.Writer) error {
					return view.Health(w, h)
				})
			})
		},
	}
	return cmd
}

func uiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Open the tabbed console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				gen := demo.New(env.Client, env.Prefs, env.Logger.Named("demo"))
				defer gen.Stop()
				m := console.New(ctx, console.Options{
					Prefs:  env.Prefs,
					Health: env.Client,
					Dev:    env.Config.Dev,
					Panels: console.Panels(env.Client, env.Prefs, gen),
					Logger: env.Logger.Named("console"),
				})
				_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
				if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
					return nil
				}
				return err
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect and create ftops.yml"}
	c.AddCommand(configShowCmd())
	c.AddCommand(configInitCmd())
	return c
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *cfg
			if shown.API.SessionToken != "" {
				shown.API.SessionToken = "(set)"
			}
			if shown.Serve.SessionSecret != "" {
				shown.Serve.SessionSecret = "(set)"
			}
			return printJSONOrTable(shown, func(w io.Writer) error {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(shown)
			})
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default ftops.yml in the working directory",
		// an unreadable existing file must not block --force
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(".")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
