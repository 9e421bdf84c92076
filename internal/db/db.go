package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	ConsoleDB = "ftops.db"
	DevAPIDB  = "ftops-dev.db"
)

type Config struct {
	// Dir holds the database file. Empty means ".ftops" in the working directory.
	Dir  string
	Name string
}

func (c Config) path() string {
	dir := c.Dir
	if dir == "" {
		dir = ".ftops"
	}
	name := c.Name
	if name == "" {
		name = ConsoleDB
	}
	return filepath.Join(dir, name)
}

// EnsureDir creates the state directory if missing.
func EnsureDir(dir string) (string, error) {
	if dir == "" {
		dir = ".ftops"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the SQLite database with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureDir(cfg.Dir); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", cfg.path())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the db path for cfg.
func Path(cfg Config) string {
	return cfg.path()
}
