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
	"time"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

// Embedded carries the SQL migrations compiled into the binary.
//
//go:embed migrations/*.sql
var Embedded embed.FS

// Source is a directory of goose SQL files.
type Source struct {
	Name string
	fsys fs.FS
}

// Dir reads migrations from a directory on disk.
func Dir(dir string) Source {
	return Source{Name: dir, fsys: os.DirFS(dir)}
}

// EmbeddedSource reads the migrations compiled into the binary.
func EmbeddedSource() Source {
	sub, err := fs.Sub(Embedded, embeddedDir)
	if err != nil {
		// fs.Sub only fails on an invalid path literal.
		panic(err)
	}
	return Source{Name: "embedded", fsys: sub}
}

// Result describes one migration touched or inspected by a command.
type Result struct {
	Version   int64
	Path      string
	Direction string
	State     string
	Duration  time.Duration
}

// Run executes up, down or status against db. SnapSpend only ships
// Postgres migrations.
func Run(ctx context.Context, db *sql.DB, src Source, command string) ([]Result, error) {
	return run(ctx, goose.DialectPostgres, db, src, command)
}

// MigrateToVersion moves the schema up or down until target is the newest
// applied version.
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, target string) ([]Result, error) {
	return migrateTo(ctx, goose.DialectPostgres, db, src, target)
}

func newProvider(dialect goose.Dialect, db *sql.DB, src Source) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("migrate: db is required")
	}
	if src.fsys == nil {
		return nil, errors.New("migrate: source is required")
	}
	p, err := goose.NewProvider(dialect, db, src.fsys)
	if err != nil {
		return nil, fmt.Errorf("migrate: load %s: %w", src.Name, err)
	}
	return p, nil
}

func run(ctx context.Context, dialect goose.Dialect, db *sql.DB, src Source, command string) ([]Result, error) {
	p, err := newProvider(dialect, db, src)
	if err != nil {
		return nil, err
	}

	switch command {
	case "up":
		applied, err := p.Up(ctx)
		return fromResults(applied), wrap("up", err)
	case "down":
		undone, err := p.Down(ctx)
		if undone == nil {
			return nil, wrap("down", err)
		}
		return fromResults([]*goose.MigrationResult{undone}), wrap("down", err)
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return nil, wrap("status", err)
		}
		out := make([]Result, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, Result{Version: s.Source.Version, Path: s.Source.Path, State: string(s.State)})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("migrate: unknown command %q", command)
	}
}

func migrateTo(ctx context.Context, dialect goose.Dialect, db *sql.DB, src Source, target string) ([]Result, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || version < 0 {
		return nil, fmt.Errorf("migrate: invalid version %q, want YYYYMMDDHHMMSS", target)
	}
	p, err := newProvider(dialect, db, src)
	if err != nil {
		return nil, err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return nil, wrap("db version", err)
	}

	switch {
	case current == version:
		return nil, nil
	case current < version:
		applied, err := p.UpTo(ctx, version)
		return fromResults(applied), wrap("up-to "+target, err)
	default:
		undone, err := p.DownTo(ctx, version)
		return fromResults(undone), wrap("down-to "+target, err)
	}
}

func fromResults(results []*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Result{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Direction: r.Direction,
			Duration:  r.Duration,
		})
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("migrate %s: %w", op, err)
}
