package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// journalTables lists every table in truncation order
var journalTables = []string{
	"triggered_alerts",
	"monitors",
	"price_bars",
	"position_transactions",
	"positions",
}

// TestDB is a migrated database running in a throwaway postgres container
type TestDB struct {
	*DB
	container testcontainers.Container
}

// SetupTestDB starts postgres, connects and applies the journal schema through
// the same Migrate path the service uses. Skipped in -short mode.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("journal_test"),
		tcpostgres.WithUsername("journal"),
		tcpostgres.WithPassword("journal"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	tdb := &TestDB{container: container}
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err == nil {
		tdb.DB, err = New(connStr)
	}
	if err == nil {
		err = tdb.Migrate("")
	}
	if err != nil {
		tdb.Cleanup(t)
		t.Fatalf("failed to prepare test database: %v", err)
	}
	return tdb
}

// Cleanup closes the pool and terminates the container
func (tdb *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	if tdb.DB != nil {
		tdb.DB.Close()
	}
	if err := tdb.container.Terminate(context.Background()); err != nil {
		t.Errorf("failed to terminate container: %v", err)
	}
}

// TruncateAll empties every journal table
func (tdb *TestDB) TruncateAll(t *testing.T) {
	t.Helper()
	for _, table := range journalTables {
		_, err := tdb.conn.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		require.NoError(t, err, "failed to truncate %s", table)
	}
}

// GetRawConn exposes the pool for assertions the store does not cover
func (tdb *TestDB) GetRawConn() *sql.DB {
	return tdb.conn
}
