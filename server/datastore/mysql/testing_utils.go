package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/config"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "root"
	testPassword = "toor"
	testAddress  = "localhost:3307"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// CreateMySQLDS creates a fresh database named after the test, applies the
// migrations and returns a datastore connected to it. The test is skipped
// unless MYSQL_TEST is set.
func CreateMySQLDS(t testing.TB) *Datastore {
	return CreateMySQLDSWithClock(t, clock.C)
}

// CreateMySQLDSWithClock is CreateMySQLDS with a caller-provided clock.
func CreateMySQLDSWithClock(t testing.TB, c clock.Clock) *Datastore {
	if _, ok := os.LookupEnv("MYSQL_TEST"); !ok {
		t.Skip("MySQL tests are disabled")
	}

	dbName := testDatabaseName(t)
	createTestDatabase(t, dbName)

	ds, err := New(mysqlTestConfig(dbName), c, Logger(log.NewNopLogger()), LimitAttempts(1))
	require.NoError(t, err)
	require.NoError(t, ds.MigrateTables(context.Background()))
	t.Cleanup(func() { ds.Close() })
	return ds
}

// TruncateTables empties every client table of ds.
func TruncateTables(t testing.TB, ds *Datastore) {
	// By setting DISABLE_TRUNCATE_TABLES a developer can troubleshoot tests
	// by inspecting mysql tables.
	if os.Getenv("DISABLE_TRUNCATE_TABLES") != "" {
		return
	}

	ctx := context.Background()
	tables := []string{
		"client_labels",
		"client_keywords",
		"client_crash_history",
		"client_startup_history",
		"client_snapshot_history",
		"clients",
	}
	for _, tbl := range tables {
		_, err := ds.writer.ExecContext(ctx, "DELETE FROM "+tbl)
		require.NoError(t, err)
	}
}

func testDatabaseName(t testing.TB) string {
	name := strings.ToLower(nonAlnum.ReplaceAllString(t.Name(), "_"))
	if len(name) > 60 {
		name = name[len(name)-60:]
	}
	return "cs_" + strings.Trim(name, "_")
}

func createTestDatabase(t testing.TB, dbName string) {
	db, err := sql.Open(
		"mysql",
		fmt.Sprintf("%s:%s@tcp(%s)/?multiStatements=true", testUsername, testPassword, testAddress),
	)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`; CREATE DATABASE `%s`;", dbName, dbName))
	require.NoError(t, err)
}

func mysqlTestConfig(dbName string) config.MysqlConfig {
	return config.MysqlConfig{
		Protocol:     "tcp",
		Address:      testAddress,
		Username:     testUsername,
		Password:     testPassword,
		Database:     dbName,
		MaxOpenConns: 10,
		MaxIdleConns: 10,
	}
}
