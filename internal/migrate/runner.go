// Package migrate applies the SQL schema and seed files shipped with the
// service. Applied files are recorded in a single ledger table keyed by
// file name, so reruns are idempotent.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"issuedesk.org/internal/obs"
)

const (
	defaultLedgerTable = "schema_history"

	kindMigration = "migration"
	kindSeed      = "seed"
)

// Runner applies migration and seed files from disk.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
	ledgerTable   string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLedgerTable overrides the bookkeeping table name.
func WithLedgerTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.ledgerTable = name
		}
	}
}

// NewRunner constructs a Runner over the given directories. The seeds
// directory may be empty.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Runner {
	r := &Runner{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
		ledgerTable:   defaultLedgerTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Up applies all pending .up.sql migrations in name order.
func (r *Runner) Up(ctx context.Context) error {
	return r.applyPending(ctx, kindMigration, r.migrationsDir, ".up.sql")
}

// Seed applies pending seed files. Seeds run after migrations and are
// recorded in the same ledger.
func (r *Runner) Seed(ctx context.Context) error {
	return r.applyPending(ctx, kindSeed, r.seedsDir, ".sql")
}

// Down rolls back the most recently applied migration using its
// .down.sql counterpart.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureLedger(ctx); err != nil {
		return err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("no migrations applied")
	}
	last := applied[len(applied)-1]
	downFile := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	path := filepath.Join(r.migrationsDir, downFile)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.execFile(ctx, path); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1 and kind = $2`, r.ledgerTable),
		last, kindMigration)
	if err == nil {
		obs.Logger().Printf("rolled back %s", last)
	}
	return err
}

// Applied returns migration names in application order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1 order by applied_at asc, name asc`, r.ledgerTable),
		kindMigration)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Runner) applyPending(ctx context.Context, kind, dir, suffix string) error {
	if dir == "" {
		return nil
	}
	if err := r.ensureLedger(ctx); err != nil {
		return err
	}
	done, err := r.alreadyApplied(ctx, kind)
	if err != nil {
		return err
	}
	files, err := listSQL(dir, suffix)
	if err != nil {
		return err
	}
	for _, name := range files {
		if done[name] {
			continue
		}
		if err := r.execFile(ctx, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("apply %s %s: %w", kind, name, err)
		}
		if _, err := r.db.ExecContext(ctx,
			fmt.Sprintf(`insert into %s(name, kind) values ($1, $2)`, r.ledgerTable),
			name, kind); err != nil {
			return err
		}
		obs.Logger().Printf("applied %s %s", kind, name)
	}
	return nil
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text not null,
			kind text not null,
			applied_at timestamptz not null default now(),
			primary key (name, kind)
		)`, r.ledgerTable))
	return err
}

func (r *Runner) alreadyApplied(ctx context.Context, kind string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1`, r.ledgerTable), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

// execFile runs one SQL file inside a transaction, statement by
// statement.
func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// listSQL returns matching file names in a flat directory, sorted.
func listSQL(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		// Down files share the .sql suffix with seeds; the suffix check
		// above already separates .up.sql from .down.sql for migrations.
		if suffix == ".sql" && strings.HasSuffix(e.Name(), ".down.sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits on semicolons outside single-quoted strings.
// Good enough for the DDL and seed files shipped here; no dollar-quoted
// bodies are used.
func splitStatements(script string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range script {
		switch r {
		case '\'':
			inString = !inString
			current.WriteRune(r)
		case ';':
			current.WriteRune(r)
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
