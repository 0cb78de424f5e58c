package mysql

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fleetdm/clientstore/server/datastore/mysql/migrations"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

const migrationsTable = "goose_db_version"

// gooseLogger routes goose output to the datastore logger.
type gooseLogger struct {
	logger log.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	level.Info(l.logger).Log("component", "migrations", "msg", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	level.Error(l.logger).Log("component", "migrations", "msg", strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}

func (d *Datastore) setupGoose() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetTableName(migrationsTable)
	goose.SetLogger(gooseLogger{logger: d.logger})
	return goose.SetDialect("mysql")
}

// MigrateTables applies every pending schema migration.
func (d *Datastore) MigrateTables(ctx context.Context) error {
	if err := d.setupGoose(); err != nil {
		return fmt.Errorf("set up migrations: %w", err)
	}
	if err := goose.Up(d.writer.DB, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// loadMigrations manually loads the applied migrations in ascending
// order (goose doesn't provide such functionality).
func (d *Datastore) loadMigrations(ctx context.Context) ([]int64, error) {
	// We need to run the following to trigger the creation of the migration status table.
	if _, err := goose.GetDBVersion(d.writer.DB); err != nil {
		return nil, err
	}
	var recs []int64
	// version_id > 0 to skip the bootstrap migration that creates the migration table.
	if err := sqlx.SelectContext(ctx, d.writer, &recs,
		"SELECT version_id FROM "+migrationsTable+" WHERE version_id > 0 AND is_applied ORDER BY id ASC",
	); err != nil {
		return nil, err
	}
	return recs, nil
}

// MigrationStatus will return the current status of the migrations
// comparing the known migrations in code and the applied migrations in the database.
//
// It assumes some deployments may perform migrations out of order.
func (d *Datastore) MigrationStatus(ctx context.Context) (*fleet.MigrationStatus, error) {
	if err := d.setupGoose(); err != nil {
		return nil, fmt.Errorf("set up migrations: %w", err)
	}
	known, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collect migrations: %w", err)
	}
	if len(known) == 0 {
		return nil, errors.New("unexpected empty migrations list")
	}
	applied, err := d.loadMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot load migrations: %w", err)
	}
	return migrationStatus(getVersionsFromMigrations(known), applied), nil
}

func migrationStatus(known, applied []int64) *fleet.MigrationStatus {
	if len(applied) == 0 {
		return &fleet.MigrationStatus{
			StatusCode: fleet.NoMigrationsCompleted,
		}
	}

	missing, unknown, equal := compareVersions(known, applied)
	if equal {
		return &fleet.MigrationStatus{
			StatusCode: fleet.AllMigrationsCompleted,
		}
	}
	if len(unknown) > 0 {
		return &fleet.MigrationStatus{
			StatusCode: fleet.UnknownMigrations,
			Unknown:    unknown,
		}
	}
	return &fleet.MigrationStatus{
		StatusCode: fleet.SomeMigrationsCompleted,
		Missing:    missing,
	}
}

// compareVersions returns any missing or extra elements in v2 with respect to v1
// (v1 or v2 need not be ordered).
func compareVersions(v1, v2 []int64) (missing []int64, unknown []int64, equal bool) {
	v1s := make(map[int64]struct{})
	for _, m := range v1 {
		v1s[m] = struct{}{}
	}
	v2s := make(map[int64]struct{})
	for _, m := range v2 {
		v2s[m] = struct{}{}
	}
	for _, m := range v1 {
		if _, ok := v2s[m]; !ok {
			missing = append(missing, m)
		}
	}
	for _, m := range v2 {
		if _, ok := v1s[m]; !ok {
			unknown = append(unknown, m)
		}
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil, nil, true
	}
	return missing, unknown, false
}

func getVersionsFromMigrations(ms goose.Migrations) []int64 {
	versions := make([]int64, len(ms))
	for i := range ms {
		versions[i] = ms[i].Version
	}
	return versions
}
