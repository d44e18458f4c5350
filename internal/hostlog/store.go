// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

// package hostlog records what Ferry observes on the wire: the host keys
// servers present during handshakes and the connection events around them.
// The log is purely observational. Nothing in here influences whether a
// handshake is accepted; it exists so operators can audit key changes
// after the fact.
package hostlog // import "github.com/toeirei/ferry/internal/hostlog"

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	// SQL drivers required for integration tests and runtime.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations
var embeddedMigrations embed.FS

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

// HostKey is one observed (endpoint, key) pair. The same endpoint can have
// multiple rows when the server's key changes over time; LastSeen tells the
// rows apart.
type HostKey struct {
	bun.BaseModel `bun:"table:host_keys"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Host          string    `bun:"host"`
	Port          int       `bun:"port"`
	Algorithm     string    `bun:"algorithm"`
	PublicKey     string    `bun:"public_key"`
	FirstSeen     time.Time `bun:"first_seen"`
	LastSeen      time.Time `bun:"last_seen"`
	SeenCount     int64     `bun:"seen_count"`
}

// Endpoint renders the row's address as user-facing "host:port".
func (k HostKey) Endpoint() string {
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

// Event is a single connection audit entry.
type Event struct {
	bun.BaseModel `bun:"table:connection_events"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Host          string    `bun:"host"`
	Port          int       `bun:"port"`
	Kind          string    `bun:"kind"`
	Detail        string    `bun:"detail"`
	OccurredAt    time.Time `bun:"occurred_at"`
}

// Event kinds written by the Ferry CLI.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventExec       = "exec"
	EventKeyChanged = "key_changed"
)

// Store is a bun-backed host key observation log. It supports the same
// three engines Ferry's config accepts: sqlite, postgres and mysql.
type Store struct {
	bun *bun.DB
}

// Open opens the database for the given type and DSN, runs any pending
// migrations and returns a ready Store.
func Open(dbType, dsn string) (*Store, error) {
	driverName := dbType
	// The pgx stdlib registers driver name "pgx"; map "postgres" to that driver.
	if dbType == "postgres" {
		driverName = "pgx"
	}
	sqlDB, err := sqlOpenFunc(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open host log database: %w", err)
	}

	// In-memory SQLite gives each connection its own database; force a
	// single connection so migrations and queries see the same schema.
	if dbType == "sqlite" && strings.Contains(dsn, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	if err := runMigrations(sqlDB, dbType); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run host log migrations: %w", err)
	}

	bunDB, err := createBunDB(sqlDB, dbType)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Store{bun: bunDB}, nil
}

// createBunDB constructs a *bun.DB for the provided *sql.DB and dbType.
func createBunDB(sqlDB *sql.DB, dbType string) (*bun.DB, error) {
	switch dbType {
	case "sqlite":
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New()), nil
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New()), nil
	default:
		return nil, fmt.Errorf("unsupported host log database type: '%s'", dbType)
	}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.bun.Close()
}

// RecordHostKey upserts an observation for (host, port, key). A repeat
// sighting bumps last_seen and seen_count; a new key for a known endpoint
// gets its own row and the previous rows stay for the audit trail. It
// reports whether the endpoint was already known with a different key.
func (s *Store) RecordHostKey(ctx context.Context, host string, port int, algorithm, publicKey string) (changed bool, err error) {
	now := time.Now().UTC()

	var existing HostKey
	err = s.bun.NewSelect().Model(&existing).
		Where("host = ?", host).
		Where("port = ?", port).
		Where("public_key = ?", publicKey).
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		_, err = s.bun.NewUpdate().Model((*HostKey)(nil)).
			Set("last_seen = ?", now).
			Set("seen_count = seen_count + 1").
			Where("id = ?", existing.ID).
			Exec(ctx)
		return false, err
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return false, err
	}

	// First time we see this exact key. Did the endpoint present a
	// different one before?
	known, err := s.bun.NewSelect().Model((*HostKey)(nil)).
		Where("host = ?", host).
		Where("port = ?", port).
		Count(ctx)
	if err != nil {
		return false, err
	}

	_, err = s.bun.NewInsert().Model(&HostKey{
		Host:      host,
		Port:      port,
		Algorithm: algorithm,
		PublicKey: publicKey,
		FirstSeen: now,
		LastSeen:  now,
		SeenCount: 1,
	}).Exec(ctx)
	if err != nil {
		return false, err
	}
	return known > 0, nil
}

// HostKeys returns all observations for an endpoint, most recent first.
func (s *Store) HostKeys(ctx context.Context, host string, port int) ([]HostKey, error) {
	var keys []HostKey
	err := s.bun.NewSelect().Model(&keys).
		Where("host = ?", host).
		Where("port = ?", port).
		Order("last_seen DESC").
		Scan(ctx)
	return keys, err
}

// AllHostKeys returns every observation across all endpoints, ordered by
// endpoint and recency. Used by the `ferry hosts` listing.
func (s *Store) AllHostKeys(ctx context.Context) ([]HostKey, error) {
	var keys []HostKey
	err := s.bun.NewSelect().Model(&keys).
		Order("host ASC", "port ASC", "last_seen DESC").
		Scan(ctx)
	return keys, err
}

// RecordEvent appends a connection audit entry.
func (s *Store) RecordEvent(ctx context.Context, host string, port int, kind, detail string) error {
	_, err := s.bun.NewInsert().Model(&Event{
		Host:       host,
		Port:       port,
		Kind:       kind,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}).Exec(ctx)
	return err
}

// Events returns the most recent audit entries, newest first, capped at
// limit. A limit of 0 means no cap.
func (s *Store) Events(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	q := s.bun.NewSelect().Model(&events).
		Order("occurred_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(ctx)
	return events, err
}

// runMigrations applies the embedded .up.sql files for the given database
// type in lexical order, tracking applied versions in schema_migrations.
func runMigrations(db *sql.DB, dbType string) error {
	migrationsPath := fmt.Sprintf("migrations/%s", dbType)

	entries, err := fs.ReadDir(embeddedMigrations, migrationsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no embedded migrations for database type '%s'", dbType)
		}
		return fmt.Errorf("failed to read embedded migrations (%s): %w", migrationsPath, err)
	}

	var ups []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	if err := ensureSchemaMigrationsTable(db, dbType); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	for _, fname := range ups {
		version := strings.TrimSuffix(fname, ".up.sql")

		var exists int
		query := "SELECT 1 FROM schema_migrations WHERE version = ?"
		if dbType == "postgres" {
			query = "SELECT 1 FROM schema_migrations WHERE version = $1"
		}
		err := db.QueryRow(query, version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check migration version %s: %w", version, err)
		}

		data, err := embeddedMigrations.ReadFile(path.Join(migrationsPath, fname))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", fname, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", version, err)
		}
		if _, err := tx.Exec(string(data)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", version, err)
		}
		insertQuery := "INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)"
		if dbType == "postgres" {
			insertQuery = "INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2)"
		}
		if _, err := tx.Exec(insertQuery, version, time.Now()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", version, err)
		}
	}
	return nil
}

func ensureSchemaMigrationsTable(db *sql.DB, dbType string) error {
	var ddl string
	switch dbType {
	case "postgres":
		ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`
	case "mysql":
		ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (version VARCHAR(191) PRIMARY KEY, applied_at DATETIME NOT NULL)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMP NOT NULL)`
	}
	_, err := db.Exec(ddl)
	return err
}
