package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ftops/internal/app"
	"ftops/internal/demo"
	"ftops/internal/domain"
	"ftops/internal/planview"
	"ftops/internal/view"
)

func eventsCmd() *cobra.Command {
	ev := &cobra.Command{Use: "events", Short: "Inspect ingestion events"}
	ev.AddCommand(eventsListCmd())
	ev.AddCommand(eventsTestCmd())
	return ev
}

func eventsListCmd() *cobra.Command {
	var expand, depth int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				list, _, err := env.Client.Events(ctx)
				if err != nil {
					return err
				}
				if expand >= len(list) {
					return fmt.Errorf("--expand must be below %d", len(list))
				}
				return printJSONOrTable(list, func(w io.Writer) error {
					if err := view.Events(w, list); err != nil {
						return err
					}
					if expand < 0 {
						return nil
					}
					doc, err := loose(list[expand])
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "\nevent %d\n", expand)
					return view.Tree(w, doc, depth)
				})
			})
		},
	}
	cmd.Flags().IntVar(&expand, "expand", -1, "render the event at this row as a tree")
	cmd.Flags().IntVar(&depth, "depth", 2, "tree expansion depth")
	return cmd
}

func eventsTestCmd() *cobra.Command {
	var source, typ, externalID, payload string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Post a synthetic event",
		Long:  "The payload is inline JSON or @file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if externalID == "" {
				return fmt.Errorf("--external-id required")
			}
			raw, err := readJSONArg(payload)
			if err != nil {
				return err
			}
			var body any = map[string]any{}
			if raw != "" {
				if err := json.Unmarshal([]byte(raw), &body); err != nil {
					return fmt.Errorf("payload: %w", err)
				}
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				res, err := env.Client.SendTestEvent(ctx, domain.TestEvent{Source: source, Type: typ, ExternalID: externalID, Payload: body})
				if err != nil {
					return err
				}
				return printJSONOrTable(res.Data, func(w io.Writer) error {
					state := "accepted"
					if res.Duplicate {
						state = "duplicate"
					}
					_, err := fmt.Fprintf(w, "%s (status %d, idempotency key %s)\n", state, res.Status, res.IdempotencyKey)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", demo.SourceManual, "event source")
	cmd.Flags().StringVar(&typ, "type", demo.TypeRecordUpserted, "event type")
	cmd.Flags().StringVar(&externalID, "external-id", "", "external id")
	cmd.Flags().StringVar(&payload, "payload", "", "payload JSON or @file")
	return cmd
}

func demoCmd() *cobra.Command {
	d := &cobra.Command{Use: "demo", Short: "Replay demo scenarios against the API"}
	d.AddCommand(demoScenariosCmd())
	d.AddCommand(demoShowCmd())
	d.AddCommand(demoSelectCmd())
	d.AddCommand(demoStrategyCmd())
	d.AddCommand(demoVariantCmd())
	d.AddCommand(demoPayloadCmd())
	d.AddCommand(demoSendCmd())
	d.AddCommand(demoLogCmd())
	d.AddCommand(demoResetCmd())
	d.AddCommand(demoOpenCmd())
	return d
}

func demoScenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List demo scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				st := demo.LoadState(env.Prefs)
				type row struct {
					ID             string          `json:"id"`
					Name           string          `json:"name"`
					Description    string          `json:"description"`
					BaseExternalID string          `json:"baseExternalId"`
					Strategies     []demo.Strategy `json:"strategies"`
				}
				var rows []row
				for _, s := range demo.Scenarios {
					rows = append(rows, row{s.ID, s.Name, s.Description, s.BaseExternalID, s.Strategies})
				}
				return printJSONOrTable(rows, func(w io.Writer) error {
					return view.Scenarios(w, st.SelectedScenarioID)
				})
			})
		},
	}
	return cmd
}

func demoShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the generator settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				st := demo.LoadState(env.Prefs)
				return printJSONOrTable(st, func(w io.Writer) error {
					return view.DemoState(w, st)
				})
			})
		},
	}
	return cmd
}

// updateDemo loads the generator state, applies fn and saves it.
func updateDemo(cmd *cobra.Command, fn func(*demo.State) error) error {
	return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
		st := demo.LoadState(env.Prefs)
		if err := fn(&st); err != nil {
			return err
		}
		if err := demo.SaveState(ctx, env.Prefs, st); err != nil {
			return err
		}
		return printJSONOrTable(st, func(w io.Writer) error {
			return view.DemoState(w, st)
		})
	})
}

func demoSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <scenario-id>",
		Short: "Select a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateDemo(cmd, func(st *demo.State) error { return st.Select(args[0]) })
		},
	}
}

func demoStrategyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategy <fixed|increment|random|timestamped>",
		Short: "Set the external id strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateDemo(cmd, func(st *demo.State) error { return st.SetStrategy(demo.Strategy(args[0])) })
		},
	}
}

func demoVariantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variant <on|off>",
		Short: "Set the payload variant of the selected scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateDemo(cmd, func(st *demo.State) error { return st.SetVariant(args[0]) })
		},
	}
}

func demoPayloadCmd() *cobra.Command {
	var set string
	var repeat, delay int
	var base string
	var load bool
	cmd := &cobra.Command{
		Use:   "payload",
		Short: "Show or edit the payload and send settings",
		Long:  "With no flags the current payload text is printed. --set takes inline JSON or @file and is stored as typed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := cmd.Flags().Changed
			if !changed("set") && !changed("repeat") && !changed("delay-ms") && !changed("base") && !load {
				return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
					_, err := fmt.Fprintln(os.Stdout, demo.LoadState(env.Prefs).PayloadText())
					return err
				})
			}
			return updateDemo(cmd, func(st *demo.State) error {
				if load {
					st.LoadScenario()
				}
				if changed("set") {
					text, err := readJSONArg(set)
					if err != nil {
						return err
					}
					// invalid text is kept; the settings view reports it
					_ = st.SetOverride(text)
				}
				if changed("repeat") {
					st.RepeatCount = repeat
				}
				if changed("delay-ms") {
					st.DelayMs = delay
				}
				if changed("base") {
					st.BaseExternalID = base
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "payload override JSON or @file")
	cmd.Flags().BoolVar(&load, "load", false, "reload the scenario's default payload and base id")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "events per send")
	cmd.Flags().IntVar(&delay, "delay-ms", 0, "delay between events")
	cmd.Flags().StringVar(&base, "base", "", "base external id")
	return cmd
}

func demoSendCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send the selected scenario",
		Long:  "Interrupting stops the run after the in-flight request completes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				gen := demo.New(env.Client, env.Prefs, env.Logger.Named("demo"))
				if count <= 0 {
					count = demo.LoadState(env.Prefs).RepeatCount
				}
				gen.Begin()
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt)
				defer signal.Stop(sig)
				done := make(chan struct{})
				defer close(done)
				go func() {
					select {
					case <-sig:
						env.Logger.Info("stopping demo run")
						gen.Stop()
					case <-done:
					}
				}()
				run, err := gen.Send(context.WithoutCancel(ctx), count)
				if perr := printJSONOrTable(run, func(w io.Writer) error {
					if err := view.DemoLog(w, run.Entries); err != nil {
						return err
					}
					_, err := fmt.Fprintf(w, "sent %d", run.Sent)
					if run.Stopped {
						fmt.Fprint(w, " (stopped)")
					}
					fmt.Fprintln(w)
					return err
				}); perr != nil {
					env.Logger.Warn("print demo run", zap.Error(perr))
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "events to send (default: the stored repeat count)")
	return cmd
}

func demoLogCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the demo result log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				gen := demo.New(env.Client, env.Prefs, env.Logger.Named("demo"))
				if clear {
					return gen.ClearLog(ctx)
				}
				entries := gen.Log()
				return printJSONOrTable(entries, func(w io.Writer) error {
					return view.DemoLog(w, entries)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the log")
	return cmd
}

func demoResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset counters and payload overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateDemo(cmd, func(st *demo.State) error {
				st.Reset()
				return nil
			})
		},
	}
}

func demoOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <external-id>",
		Short: "Preview the record of a sent event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				uri, err := demo.Open(ctx, env.Prefs, args[0])
				if err != nil {
					return err
				}
				p, _, err := env.Client.PlanPreview(ctx, uri)
				if err != nil {
					return fmt.Errorf("%s: %w", uri, err)
				}
				return printJSONOrTable(p, func(w io.Writer) error {
					fmt.Fprintln(w, uri)
					return planview.Render(w, p, planview.Options{})
				})
			})
		},
	}
}
