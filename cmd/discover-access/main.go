package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ftops/internal/access"
	"ftops/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "discover-access",
	Short: "Snapshot the access apps and policies in front of the ops hosts",
	Long: `Lists the account's access applications, keeps those whose domain, self-hosted
domains or destinations match one of the hosts, and prints each with its policies as JSON.
Credentials come from CLOUDFLARE_API_TOKEN and CLOUDFLARE_ACCOUNT_ID.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.New(viper.GetString("log-level"), "console")
		if err != nil {
			return err
		}
		defer logger.Sync()
		client, err := access.NewClient(viper.GetString("api-token"), viper.GetString("account-id"), nil, logger.Named("access"))
		if err != nil {
			return err
		}
		if base := viper.GetString("api-base-url"); base != "" {
			client.BaseURL = strings.TrimRight(base, "/")
		}
		report, err := client.Discover(cmd.Context(), viper.GetStringSlice("host"), time.Now())
		if err != nil {
			return err
		}
		return access.Write(cmd.OutOrStdout(), report, viper.GetString("out"))
	},
}

func main() {
	addFlags()
	cobra.OnInitialize(initConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// initConfig reads credentials from the environment only; host and out come from flags.
func initConfig() {
	_ = viper.BindEnv("api-token", "CLOUDFLARE_API_TOKEN")
	_ = viper.BindEnv("account-id", "CLOUDFLARE_ACCOUNT_ID")
	_ = viper.BindEnv("api-base-url", "CLOUDFLARE_API_BASE_URL")
	_ = viper.BindPFlag("host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("out", rootCmd.Flags().Lookup("out"))
	_ = viper.BindPFlag("log-level", rootCmd.Flags().Lookup("log-level"))
}

func addFlags() {
	rootCmd.Flags().StringSlice("host", nil, "host to match (repeatable; default "+strings.Join(access.DefaultHosts, ", ")+")")
	rootCmd.Flags().String("out", "", "also write the report to this file")
	rootCmd.Flags().String("log-level", "warn", "log level")
}
