package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed sql/console/*.sql sql/devapi/*.sql
var migrationsFS embed.FS

// Set names a group of migrations applied to one database.
type Set string

const (
	Console Set = "console"
	DevAPI  Set = "devapi"
)

type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Status compares the applied version with the embedded migrations.
type Status struct {
	Applied  int
	Expected int
	Missing  []string
}

// OK reports whether every embedded migration has been applied.
func (s Status) OK() bool { return len(s.Missing) == 0 }

func loadMigrations(set Set) ([]Migration, error) {
	dir := path.Join("sql", string(set))
	files, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, err
	}
	var migrations []Migration
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := migrationsFS.ReadFile(path.Join(dir, f.Name()))
		if err != nil {
			return nil, err
		}
		var v int
		_, err = fmt.Sscanf(f.Name(), "%d_", &v)
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: v,
			Name:    f.Name(),
			UpSQL:   string(data),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies embedded migrations of set in order.
func Migrate(db *sql.DB, set Set) error {
	migrations, err := loadMigrations(set)
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var currentVersion int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&currentVersion)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		if _, err := tx.Exec(m.UpSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, m.Version); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		currentVersion = m.Version
	}
	return tx.Commit()
}

// Check reports migration drift without applying anything.
func Check(db *sql.DB, set Set) (Status, error) {
	migrations, err := loadMigrations(set)
	if err != nil {
		return Status{}, err
	}
	var st Status
	if len(migrations) > 0 {
		st.Expected = migrations[len(migrations)-1].Version
	}
	var hasTable int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&hasTable); err != nil {
		return Status{}, fmt.Errorf("inspect schema_version: %w", err)
	}
	if hasTable > 0 {
		err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&st.Applied)
		if err != nil && err != sql.ErrNoRows {
			return Status{}, fmt.Errorf("read schema_version: %w", err)
		}
	}
	for _, m := range migrations {
		if m.Version > st.Applied {
			st.Missing = append(st.Missing, m.Name)
		}
	}
	return st, nil
}
