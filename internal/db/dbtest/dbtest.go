// Package dbtest provisions a migrated PostgreSQL database for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/studyplus/tracker/internal/db"
	"github.com/studyplus/tracker/migrations"
)

// Image is the PostgreSQL image started when DATABASE_URL is not set.
const Image = "postgres:16-alpine"

// New returns a migrated database with all application tables emptied.
//
// DATABASE_URL, when set, points at an existing database. Otherwise a throwaway
// container is started with testcontainers; the test is skipped if Docker is
// not available.
func New(t *testing.T) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		ctr, err := postgres.Run(ctx, Image,
			postgres.WithDatabase("study"),
			postgres.WithUsername("study"),
			postgres.WithPassword("study"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Skipf("postgres container unavailable: %v", err)
		}
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(ctr); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		dsn, err = ctr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("failed to get connection string: %v", err)
		}
	}

	conn, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := db.Migrate(ctx, conn, migrations.FS); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	_, err = conn.ExecContext(ctx,
		`TRUNCATE playlist_items, playlists, notes, watch_history, user_analytics, videos`)
	if err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
	return conn
}
