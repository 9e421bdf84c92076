package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ftops/internal/app"
	"ftops/internal/domain"
	"ftops/internal/templates"
	"ftops/internal/view"
)

func templatesCmd() *cobra.Command {
	t := &cobra.Command{Use: "templates", Short: "Manage plan templates"}
	t.AddCommand(templatesListCmd())
	t.AddCommand(templatesShowCmd())
	t.AddCommand(templatesCreateCmd())
	t.AddCommand(templatesUpdateCmd())
	t.AddCommand(templatesDeleteCmd())
	t.AddCommand(rulesCmd())
	t.AddCommand(stepsCmd())
	return t
}

func withTemplates(cmd *cobra.Command, fn func(context.Context, *app.Env, templates.Service) error) error {
	return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
		return fn(ctx, env, templates.Service{API: env.Client, Prefs: env.Prefs})
	})
}

func printTemplate(d domain.TemplateDetail) error {
	return printJSONOrTable(d, func(w io.Writer) error {
		return view.TemplateDetail(w, d)
	})
}

func templatesListCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Long:  "The search term is remembered; pass --search \"\" to clear it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
				term := svc.Search()
				if cmd.Flags().Changed("search") {
					term = search
				}
				list, err := svc.List(ctx, term)
				if err != nil {
					return err
				}
				return printJSONOrTable(list, func(w io.Writer) error {
					return view.Templates(w, list, svc.Selected())
				})
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by key, title, category or deliverable")
	return cmd
}

func templateKeyArg(args []string, svc templates.Service) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if key := svc.Selected(); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("template key required")
}

func templatesShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [key]",
		Short: "Show a template with rules and steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
				key, err := templateKeyArg(args, svc)
				if err != nil {
					return err
				}
				d, err := svc.Load(ctx, key)
				if err != nil {
					return err
				}
				return printTemplate(d)
			})
		},
	}
	return cmd
}

type draftFlags struct {
	d templates.Draft
}

func (f *draftFlags) register(fs *pflag.FlagSet, withKey bool) {
	def := templates.NewDraft()
	if withKey {
		fs.StringVar(&f.d.Key, "key", "", "template key")
	}
	fs.StringVar(&f.d.Title, "title", "", "title")
	fs.StringVar(&f.d.Kind, "kind", def.Kind, "kind")
	fs.StringVar(&f.d.Scope, "scope", def.Scope, "scope (project, shared or deliverable)")
	fs.StringVar(&f.d.CategoryKey, "category", "", "category key")
	fs.StringVar(&f.d.DeliverableKey, "deliverable", "", "deliverable key")
	fs.StringVar(&f.d.DefaultPosition, "position", "", "default position")
	fs.StringVar(&f.d.DefaultStateJSON, "state", "", "default state JSON or @file")
	fs.BoolVar(&f.d.IsActive, "active", def.IsActive, "active")
}

// apply copies the changed flags onto base.
func (f *draftFlags) apply(fs *pflag.FlagSet, base templates.Draft) (templates.Draft, error) {
	set := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	set("title", &base.Title, f.d.Title)
	set("kind", &base.Kind, f.d.Kind)
	set("scope", &base.Scope, f.d.Scope)
	set("category", &base.CategoryKey, f.d.CategoryKey)
	set("deliverable", &base.DeliverableKey, f.d.DeliverableKey)
	set("position", &base.DefaultPosition, f.d.DefaultPosition)
	if fs.Changed("state") {
		text, err := readJSONArg(f.d.DefaultStateJSON)
		if err != nil {
			return base, err
		}
		base.DefaultStateJSON = text
	}
	if fs.Changed("active") {
		base.IsActive = f.d.IsActive
	}
	return base, nil
}

func templatesCreateCmd() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := f.apply(cmd.Flags(), templates.NewDraft())
			if err != nil {
				return err
			}
			d.Key = f.d.Key
			return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
				created, err := svc.Create(ctx, d)
				if err != nil {
					return err
				}
				return printTemplate(created)
			})
		},
	}
	f.register(cmd.Flags(), true)
	return cmd
}

func templatesUpdateCmd() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "update [key]",
		Short: "Update a template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
				key, err := templateKeyArg(args, svc)
				if err != nil {
					return err
				}
				current, err := svc.Load(ctx, key)
				if err != nil {
					return err
				}
				d, err := f.apply(cmd.Flags(), templates.DraftFrom(current.Template))
				if err != nil {
					return err
				}
				updated, err := svc.Update(ctx, key, d)
				if err != nil {
					return err
				}
				return printTemplate(updated)
			})
		},
	}
	f.register(cmd.Flags(), false)
	return cmd
}

func templatesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
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

func rulesCmd() *cobra.Command {
	r := &cobra.Command{Use: "rules", Short: "Manage template match rules"}
	r.AddCommand(rulesAddCmd())
	r.AddCommand(rulesUpdateCmd())
	r.AddCommand(rulesDeleteCmd())
	return r
}

func registerRuleFlags(fs *pflag.FlagSet, r *templates.RuleDraft) {
	def := templates.NewRuleDraft()
	fs.StringVar(&r.Priority, "priority", def.Priority, "priority")
	fs.StringVar(&r.MatchJSON, "match", def.MatchJSON, "match JSON or @file")
	fs.BoolVar(&r.IsActive, "active", def.IsActive, "active")
}

func rulesAddCmd() *cobra.Command {
	var r templates.RuleDraft
	cmd := &cobra.Command{
		Use:   "add <template-key>",
		Short: "Add a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := readJSONArg(r.MatchJSON)
			if err != nil {
				return err
			}
			r.MatchJSON = match
			return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
				d, err := svc.AddRule(ctx, args[0], r)
				if err != nil {
					return err
				}
				return printTemplate(d)
			})
		},
	}
	registerRuleFlags(cmd.Flags(), &r)
	return cmd
}

func rulesUpdateCmd() *cobra.Command {
	var r templates.RuleDraft
	cmd := &cobra.Command{
		Use:   "update <template-key> <rule-id>",
		Short: "Update a rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
				current, err := svc.Load(ctx, args[0])
				if err != nil {
					return err
				}
				var draft templates.RuleDraft
				found := false
				for _, rule := range current.Rules {
					if rule.ID == args[1] {
						draft, found = templates.RuleDraftFrom(rule), true
					}
				}
				if !found {
					return fmt.Errorf("rule %q not found on %s", args[1], args[0])
				}
				fs := cmd.Flags()
				if fs.Changed("priority") {
					draft.Priority = r.Priority
				}
				if fs.Changed("match") {
					if draft.MatchJSON, err = readJSONArg(r.MatchJSON); err != nil {
						return err
					}
				}
				if fs.Changed("active") {
					draft.IsActive = r.IsActive
				}
				d, err := svc.SaveRule(ctx, args[0], args[1], draft)
				if err != nil {
					return err
				}
				return printTemplate(d)
			})
		},
	}
	registerRuleFlags(cmd.Flags(), &r)
	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <template-key> <rule-id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
				d, err := svc.DeleteRule(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printTemplate(d)
			})
		},
	}
	return cmd
}

func stepsCmd() *cobra.Command {
	s := &cobra.Command{Use: "steps", Short: "Edit a template's ordered steps"}
	s.AddCommand(stepsListCmd())
	s.AddCommand(stepsAddCmd())
	s.AddCommand(stepsEditCmd())
	s.AddCommand(stepsRemoveCmd())
	s.AddCommand(stepsMoveCmd())
	return s
}

// editSteps loads the template's steps into an editor, applies fn and saves the renumbered list.
func editSteps(cmd *cobra.Command, key string, fn func(*templates.StepEditor) error) error {
	return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
		current, err := svc.Load(ctx, key)
		if err != nil {
			return err
		}
		ed := templates.NewStepEditor(current.Steps)
		if err := fn(ed); err != nil {
			return err
		}
		d, err := svc.SaveSteps(ctx, key, ed)
		if err != nil {
			return err
		}
		return printSteps(d.Steps)
	})
}

func printSteps(steps []domain.TemplateStep) error {
	return printJSONOrTable(steps, func(w io.Writer) error {
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.AppendHeader(table.Row{"#", "ID", "Title", "Description"})
		for _, s := range steps {
			tw.AppendRow(table.Row{s.Position, s.ID, s.Title, s.Description})
		}
		tw.Render()
		return nil
	})
}

func stepsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <template-key>",
		Short: "List steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(cmd, func(ctx context.Context, env *app.Env, svc templates.Service) error {
				d, err := svc.Load(ctx, args[0])
				if err != nil {
					return err
				}
				return printSteps(templates.NewStepEditor(d.Steps).Steps())
			})
		},
	}
	return cmd
}

func stepsAddCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add <template-key> <title>",
		Short: "Append a step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editSteps(cmd, args[0], func(ed *templates.StepEditor) error {
				_, err := ed.Add(args[1], description)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "step description")
	return cmd
}

func stepsEditCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "edit <template-key> <step-id> <title>",
		Short: "Edit a step",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editSteps(cmd, args[0], func(ed *templates.StepEditor) error {
				return ed.Edit(args[1], args[2], description)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "step description")
	return cmd
}

func stepsRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <template-key> <step-id>",
		Short: "Remove a step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editSteps(cmd, args[0], func(ed *templates.StepEditor) error {
				return ed.Remove(args[1])
			})
		},
	}
	return cmd
}

func stepsMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <template-key> <step-id> <up|down|before|after> [target-step-id]",
		Short: "Reorder a step",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, dir := args[1], args[2]
			target := ""
			if len(args) == 4 {
				target = args[3]
			}
			return editSteps(cmd, args[0], func(ed *templates.StepEditor) error {
				switch dir {
				case "up":
					return ed.MoveUp(ref)
				case "down":
					return ed.MoveDown(ref)
				case "before", "after":
					if target == "" {
						return fmt.Errorf("move %s needs a target step", dir)
					}
					if dir == "before" {
						return ed.MoveBefore(ref, target)
					}
					return ed.MoveAfter(ref, target)
				default:
					return fmt.Errorf("unknown direction %q", dir)
				}
			})
		},
	}
	return cmd
}
