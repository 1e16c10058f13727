// Package migrate owns the postgres schema of the ledger. The SQL files are
// embedded so every binary can bring a database up to date without the
// source tree; sqlite databases take their schema from the gorm models.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migration files are scaffolded.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source picks the migration files: the embedded set when dir is empty,
// otherwise the files on disk.
func Source(dir string) fs.FS {
	if dir == "" {
		return Embedded()
	}
	return os.DirFS(dir)
}

// Migrator applies ledger migrations to a postgres database.
type Migrator struct {
	provider *goose.Provider
}

// Step is one applied or rolled back migration.
type Step struct {
	Version   int64
	File      string
	Direction string
	Err       error
}

// New builds a migrator over files. Validation runs first so a malformed
// file is reported before anything touches the database.
func New(db *sql.DB, files fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if files == nil {
		files = Embedded()
	}
	if err := ValidateFS(files); err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, files)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]Step, error) {
	results, err := m.provider.Up(ctx)
	return steps(results), wrap("up", err)
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) ([]Step, error) {
	result, err := m.provider.Down(ctx)
	if result == nil {
		return nil, wrap("down", err)
	}
	return steps([]*goose.MigrationResult{result}), wrap("down", err)
}

// To moves the schema up or down to target, a YYYYMMDDHHMMSS version.
func (m *Migrator) To(ctx context.Context, target string) ([]Step, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != len(versionLayout) {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}

	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil, nil
	case current < version:
		results, err = m.provider.UpTo(ctx, version)
		return steps(results), wrap("up-to", err)
	default:
		results, err = m.provider.DownTo(ctx, version)
		return steps(results), wrap("down-to", err)
	}
}

// Status lists every known migration with whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]Step, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, wrap("status", err)
	}
	out := make([]Step, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, Step{
			Version:   st.Source.Version,
			File:      st.Source.Path,
			Direction: string(st.State),
		})
	}
	return out, nil
}

func steps(results []*goose.MigrationResult) []Step {
	out := make([]Step, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Step{
			Version:   r.Source.Version,
			File:      r.Source.Path,
			Direction: r.Direction,
			Err:       r.Error,
		})
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
