package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ftops/internal/db"
	"ftops/internal/engine"
	"ftops/internal/migrate"
	"ftops/internal/server"
)

const defaultServeAddr = "127.0.0.1:8787"

func devCmd() *cobra.Command {
	d := &cobra.Command{Use: "dev", Short: "Local development API"}
	d.AddCommand(serveCmd())
	d.AddCommand(tokenCmd())
	return d
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local ops API",
		Long:  "Serves the ops API from a SQLite database in the state directory. Without a session secret every caller is accepted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Dir: cfg.State.Dir, Name: db.DevAPIDB})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn, migrate.DevAPI); err != nil {
				return err
			}
			e := engine.New(conn, logger.Named("engine"))
			if _, err := e.EnsureDefaultWorkspace(cmd.Context()); err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Serve.Addr
			}
			if addr == "" {
				addr = defaultServeAddr
			}
			authCfg := server.AuthConfig{SessionSecret: cfg.Serve.SessionSecret, Logger: logger.Named("auth")}
			if authCfg.SessionSecret == "" {
				logger.Warn("no session secret configured; accepting every caller")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: logger.Named("http")})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving", zap.String("addr", addr), zap.String("db", db.Path(db.Config{Dir: cfg.State.Dir, Name: db.DevAPIDB})))
			fmt.Printf("Serving ftops ops API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default serve.addr, then "+defaultServeAddr+")")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var email string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email required")
			}
			token, err := server.IssueSession(cfg.Serve.SessionSecret, email, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "identity to embed")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
