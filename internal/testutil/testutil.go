// Package testutil starts a throwaway PostgreSQL for store integration tests.
package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB manages a testcontainers PostgreSQL instance with the schema applied.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	DSN       string
}

// tables lists every application table, children first.
var tables = []string{
	"team_task_completions",
	"team_tasks",
	"team_members",
	"teams",
	"todos",
	"sessions",
	"verification_codes",
	"users",
}

// NewTestDB starts PostgreSQL, runs the migrations and returns a pool. The
// test is skipped under -short or when Docker is not available.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:16-alpine",
		tcPostgres.WithDatabase("taskhub_test"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	tdb := &TestDB{Container: container}
	t.Cleanup(tdb.Cleanup)

	tdb.DSN, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := migrateUp(tdb.DSN); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	tdb.Pool, err = pgxpool.New(ctx, tdb.DSN)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	return tdb
}

// migrationsDir returns the absolute path of the repository's migrations.
func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func migrateUp(dsn string) error {
	m, err := migrate.New("file://"+filepath.ToSlash(migrationsDir()), dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Cleanup closes the pool and terminates the container.
func (tdb *TestDB) Cleanup() {
	if tdb.Pool != nil {
		tdb.Pool.Close()
	}
	if tdb.Container != nil {
		_ = tdb.Container.Terminate(context.Background())
	}
}

// Truncate clears all tables for test isolation.
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	_, err := tdb.Pool.Exec(context.Background(), "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE")
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// InsertUser creates a user with the given username and email and returns its id.
func (tdb *TestDB) InsertUser(t *testing.T, username, email string) string {
	t.Helper()

	var id string
	err := tdb.Pool.QueryRow(context.Background(),
		`INSERT INTO users (email, username) VALUES ($1, $2) RETURNING id`, email, username,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert user %s: %v", username, err)
	}
	return id
}
