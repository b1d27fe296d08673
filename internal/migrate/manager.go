package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultVersionTable = "schema_version"
	defaultSeedsTable   = "schema_seeds"
)

// Manager applies forward-only SQL migrations stored on disk. A single-row
// table holds a monotonically increasing integer version; upgrade scripts are
// applied in order until the stored version matches the highest available
// script.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
	versionTable  string
	seedsTable    string
}

// Option configures Manager.
type Option func(*Manager)

// WithVersionTable overrides the default version marker table.
func WithVersionTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.versionTable = name
		}
	}
}

// WithSeedsTable overrides the default seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Manager {
	m := &Manager{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
		versionTable:  defaultVersionTable,
		seedsTable:    defaultSeedsTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all upgrade scripts with a version above the stored marker, in
// order, bumping the marker after each script.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	files, err := collectVersioned(m.migrationsDir)
	if err != nil {
		return err
	}
	for _, mig := range files {
		if mig.Version <= current {
			continue
		}
		if mig.Version != current+1 {
			return fmt.Errorf("migration gap: have version %d, next script is %s", current, mig.Base)
		}
		if err := m.exec(ctx, mig.Path); err != nil {
			return fmt.Errorf("apply migration %s: %w", mig.Base, err)
		}
		if err := m.setVersion(ctx, mig.Version); err != nil {
			return err
		}
		current = mig.Version
	}
	return nil
}

// Version returns the stored schema version, 0 before any migration.
func (m *Manager) Version(ctx context.Context) (int, error) {
	if err := m.ensureTables(ctx); err != nil {
		return 0, err
	}
	var v int
	err := m.db.QueryRowContext(ctx, fmt.Sprintf(`select version from %s`, m.versionTable)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Status reports the stored version and any pending upgrade scripts.
func (m *Manager) Status(ctx context.Context) (int, []string, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return 0, nil, err
	}
	files, err := collectVersioned(m.migrationsDir)
	if err != nil {
		return 0, nil, err
	}
	var pending []string
	for _, mig := range files {
		if mig.Version > current {
			pending = append(pending, mig.Base)
		}
	}
	return current, pending, nil
}

// Seed applies seed files idempotently.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	executed, err := m.listExecutedSeeds(ctx)
	if err != nil {
		return err
	}
	files, err := collectSQL(m.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, seed := range files {
		if executed[seed.Base] {
			continue
		}
		if err := m.exec(ctx, seed.Path); err != nil {
			return fmt.Errorf("apply seed %s: %w", seed.Base, err)
		}
		if _, err := m.db.ExecContext(ctx,
			fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.seedsTable),
			seed.Base, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) ensureTables(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		create table if not exists %s (
			version integer not null
		);`, m.versionTable)
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	seedDDL := fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		);`, m.seedsTable)
	_, err := m.db.ExecContext(ctx, seedDDL)
	return err
}

func (m *Manager) setVersion(ctx context.Context, v int) error {
	res, err := m.db.ExecContext(ctx, fmt.Sprintf(`update %s set version = $1`, m.versionTable), v)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = m.db.ExecContext(ctx, fmt.Sprintf(`insert into %s(version) values ($1)`, m.versionTable), v)
	}
	return err
}

func (m *Manager) exec(ctx context.Context, path string) error {
	sqlBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	statements := splitStatements(string(sqlBytes))
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) listExecutedSeeds(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, m.seedsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result[name] = true
	}
	return result, rows.Err()
}

type sqlFile struct {
	Base string
	Path string
}

type versionedFile struct {
	sqlFile
	Version int
}

// collectVersioned gathers NNNN_*.up.sql files ordered by numeric prefix.
func collectVersioned(dir string) ([]versionedFile, error) {
	files, err := collectSQL(dir, ".up.sql")
	if err != nil {
		return nil, err
	}
	out := make([]versionedFile, 0, len(files))
	for _, f := range files {
		prefix, _, ok := strings.Cut(f.Base, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s lacks a numeric version prefix", f.Base)
		}
		v, err := strconv.Atoi(prefix)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s lacks a numeric version prefix", f.Base)
		}
		out = append(out, versionedFile{sqlFile: f, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", out[i].Version)
		}
	}
	return out, nil
}

func collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), suffix) {
			files = append(files, sqlFile{
				Base: d.Name(),
				Path: path,
			})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Base < files[j].Base
	})
	return files, nil
}

// splitStatements naively splits SQL by semicolon while preserving simple cases.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	var inString bool
	for _, r := range sql {
		switch r {
		case '\'':
			current.WriteRune(r)
			inString = !inString
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
