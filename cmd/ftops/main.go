package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ftops/internal/app"
	"ftops/internal/config"
	"ftops/internal/logging"
	ftopssdk "ftops/sdk/go"
)

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "ftops",
	Short: "ftops ops console",
	Long: `ftops is the operator console for the ops API.
- Preview: resolve a commercial record into the plan of templates it would produce.
- Events: inspect ingestion events and post synthetic test events.
- Demo: replay scenario payloads against the API with chosen id strategies.
- Templates: edit templates, their match rules and ordered steps.
- Projects: create projects from records, materialize tasks and track them on a board.
- Admin: workspaces, provider integrations and raw ingest requests.
Settings persist in the state directory between runs; 'ftops ui' opens the tabbed console.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", message(err))
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FTOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("base-url", "FTOPS_API_BASE_URL")
	_ = viper.BindEnv("session-token", "FTOPS_SESSION_TOKEN")
	_ = viper.BindEnv("session-secret", "FTOPS_SESSION_SECRET")
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./ftops.yml when present)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("base-url", "", "ops API base URL (overrides config)")
	rootCmd.PersistentFlags().String("state-dir", "", "state directory (overrides config)")
	rootCmd.PersistentFlags().Bool("dev", false, "dev mode: send the debug identity header")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("state-dir", rootCmd.PersistentFlags().Lookup("state-dir"))
	_ = viper.BindPFlag("dev", rootCmd.PersistentFlags().Lookup("dev"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(demoCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(integrationsCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(workspacesCmd())
	rootCmd.AddCommand(prefsCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(uiCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(devCmd())
}

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		c, err = config.FromFile(path)
	} else {
		c, err = config.LoadOptional(".")
	}
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("base-url"); v != "" {
		c.API.BaseURL = v
	}
	if v := viper.GetString("session-token"); v != "" {
		c.API.SessionToken = v
	}
	if v := viper.GetString("state-dir"); v != "" {
		c.State.Dir = v
	}
	if v := viper.GetString("log-level"); v != "" {
		c.Log.Level = v
	}
	if viper.IsSet("dev") {
		c.Dev = viper.GetBool("dev")
	}
	if v := viper.GetString("session-secret"); v != "" {
		c.Serve.SessionSecret = v
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	env, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

// printJSONOrTable writes v as JSON under --json, otherwise through render.
func printJSONOrTable(v any, render func(io.Writer) error) error {
	if viper.GetBool("json") || render == nil {
		return printJSON(v)
	}
	return render(os.Stdout)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// message prefers the API's own message over the raw status line.
func message(err error) string {
	var apiErr *ftopssdk.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Friendly(err.Error())
	}
	return err.Error()
}

// loose re-decodes v as plain JSON values for the tree renderer.
func loose(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(b, &out)
	return out, err
}

func readJSONArg(value string) (string, error) {
	if strings.HasPrefix(value, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(value, "@"))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return value, nil
}
