// Package app wires config, preferences, the API client and the logger into one Env.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"ftops/internal/config"
	"ftops/internal/db"
	"ftops/internal/migrate"
	"ftops/internal/prefs"
	ftopssdk "ftops/sdk/go"
)

// Env is everything a command or panel needs.
type Env struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sql.DB
	Prefs  *prefs.Prefs
	Client *ftopssdk.Client
}

// Open opens the console database, loads preferences and builds the API client.
// The debug identity header is only sent in dev mode.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Env, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Dir: cfg.State.Dir, Name: db.ConsoleDB})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := migrate.Migrate(conn, migrate.Console); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	p, err := prefs.Open(ctx, prefs.SQLStore{DB: conn})
	if err != nil {
		conn.Close()
		return nil, err
	}
	client, err := NewClient(cfg, p, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	logger.Debug("env ready", zap.String("base_url", cfg.API.BaseURL), zap.String("state", db.Path(db.Config{Dir: cfg.State.Dir})), zap.Bool("dev", cfg.Dev))
	return &Env{Config: cfg, Logger: logger, DB: conn, Prefs: p, Client: client}, nil
}

// NewClient builds the ops API client for cfg.
func NewClient(cfg *config.Config, p *prefs.Prefs, logger *zap.Logger) (*ftopssdk.Client, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	c := ftopssdk.New(cfg.API.BaseURL)
	c.Timeout = timeout
	c.SessionToken = cfg.API.SessionToken
	c.Logger = logger.Named("api")
	if cfg.Dev && p != nil {
		c.DebugEmail = p.DebugEmail()
	}
	return c, nil
}

// Close releases the state database.
func (e *Env) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}
