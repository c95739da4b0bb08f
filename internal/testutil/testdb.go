package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const templateDB = "transfer_engine_template"

var (
	pgOnce    sync.Once
	pgBaseDSN string
	pgErr     error

	createMu sync.Mutex
)

// SetupTestDB returns a connection to a fresh database cloned from a migrated
// template. One Postgres container serves the whole test binary and is reaped
// by testcontainers when the process exits.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	base, err := sharedPostgres()
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	name := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := adminExec(base, fmt.Sprintf("CREATE DATABASE %s TEMPLATE %s",
		pq.QuoteIdentifier(name), pq.QuoteIdentifier(templateDB))); err != nil {
		t.Fatalf("create test database: %v", err)
	}

	db, err := sql.Open("postgres", withDatabase(base, name))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		if err := adminExec(base, fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", pq.QuoteIdentifier(name))); err != nil {
			t.Logf("drop test database: %v", err)
		}
	})

	return db
}

func sharedPostgres() (string, error) {
	pgOnce.Do(func() {
		pgBaseDSN, pgErr = startPostgres()
	})
	return pgBaseDSN, pgErr
}

func startPostgres() (string, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase(templateDB),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", fmt.Errorf("run container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return "", fmt.Errorf("connection string: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return "", fmt.Errorf("open template: %w", err)
	}
	// The template must have no open sessions when it is cloned.
	defer db.Close()

	if err := runMigrations(db); err != nil {
		return "", fmt.Errorf("run migrations: %w", err)
	}
	return dsn, nil
}

func adminExec(base, stmt string) error {
	createMu.Lock()
	defer createMu.Unlock()

	admin, err := sql.Open("postgres", withDatabase(base, "postgres"))
	if err != nil {
		return err
	}
	defer admin.Close()

	_, err = admin.Exec(stmt)
	return err
}

func withDatabase(dsn, name string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	u.Path = "/" + name
	return u.String()
}

func runMigrations(db *sql.DB) error {
	migrationsDir := findMigrationsDir()

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, f := range upFiles {
		content, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", f, err)
		}
	}

	return nil
}

// Walk up from CWD to find the project root migrations directory.
// go test sets CWD to the package under test, so we may need to traverse up.
func findMigrationsDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "migrations"
	}
	for range 10 {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	return "migrations"
}
