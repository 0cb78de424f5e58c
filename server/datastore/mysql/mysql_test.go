package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/VividCortex/mysqlerr"
	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/config"
	"github.com/fleetdm/clientstore/server/contexts/ctxdb"
	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/datastore/datastoretest"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/go-kit/log"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQL(t *testing.T) {
	ds := CreateMySQLDS(t)
	datastoretest.RunTests(t, func(t *testing.T) fleet.Datastore {
		TruncateTables(t, ds)
		return ds
	})
}

func mockDatastore(t *testing.T) (sqlmock.Sqlmock, *Datastore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	dbmock := sqlx.NewDb(db, "sqlmock")
	ds := &Datastore{
		writer:  dbmock,
		replica: dbmock,
		logger:  log.NewNopLogger(),
		clock:   clock.NewMockClock(),
	}

	return mock, ds
}

func TestWithRetryTxxSuccess(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, ds.withRetryTxx(context.Background(), func(tx sqlx.ExtContext) error {
		_, err := tx.ExecContext(context.Background(), "SELECT 1")
		return err
	}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryTxxRollbackSuccess(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1").WillReturnError(errors.New("fail"))
	mock.ExpectRollback()

	require.Error(t, ds.withRetryTxx(context.Background(), func(tx sqlx.ExtContext) error {
		_, err := tx.ExecContext(context.Background(), "SELECT 1")
		return err
	}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryTxxRollbackError(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1").WillReturnError(errors.New("fail"))
	mock.ExpectRollback().WillReturnError(errors.New("rollback failed"))

	require.Error(t, ds.withRetryTxx(context.Background(), func(tx sqlx.ExtContext) error {
		_, err := tx.ExecContext(context.Background(), "SELECT 1")
		return err
	}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryTxxRetrySuccess(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	mock.ExpectBegin()
	// Return a retryable error
	mock.ExpectExec("SELECT 1").WillReturnError(&mysql.MySQLError{Number: mysqlerr.ER_LOCK_DEADLOCK})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	assert.NoError(t, ds.withRetryTxx(context.Background(), func(tx sqlx.ExtContext) error {
		_, err := tx.ExecContext(context.Background(), "SELECT 1")
		return err
	}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryTxxCommitRetrySuccess(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(1, 1))
	// Return a retryable error
	mock.ExpectCommit().WillReturnError(&mysql.MySQLError{Number: mysqlerr.ER_LOCK_WAIT_TIMEOUT})
	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	assert.NoError(t, ds.withRetryTxx(context.Background(), func(tx sqlx.ExtContext) error {
		_, err := tx.ExecContext(context.Background(), "SELECT 1")
		return err
	}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryTxxCommitError(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("fail"))

	assert.Error(t, ds.withRetryTxx(context.Background(), func(tx sqlx.ExtContext) error {
		_, err := tx.ExecContext(context.Background(), "SELECT 1")
		return err
	}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryTxxWillRollbackWhenPanic(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	require.Panics(t, func() {
		_ = ds.withRetryTxx(context.Background(), func(tx sqlx.ExtContext) error {
			_, err := tx.ExecContext(context.Background(), "SELECT 1")
			require.NoError(t, err)
			panic("oh no")
		})
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryableError(t *testing.T) {
	ctx := context.Background()
	deadlock := &mysql.MySQLError{Number: mysqlerr.ER_LOCK_DEADLOCK}

	assert.True(t, retryableError(deadlock))
	assert.True(t, retryableError(ctxerr.Wrap(ctx, deadlock, "wrapped")))
	assert.True(t, retryableError(&mysql.MySQLError{Number: mysqlerr.ER_LOCK_WAIT_TIMEOUT}))
	assert.False(t, retryableError(&mysql.MySQLError{Number: mysqlerr.ER_DUP_ENTRY}))
	assert.False(t, retryableError(errors.New("fail")))
}

func TestIsChildForeignKeyError(t *testing.T) {
	fkErr := &mysql.MySQLError{Number: mysqlerr.ER_NO_REFERENCED_ROW_2}
	assert.True(t, isChildForeignKeyError(fkErr))
	assert.True(t, isChildForeignKeyError(ctxerr.Wrap(context.Background(), fkErr, "insert")))
	assert.False(t, isChildForeignKeyError(&mysql.MySQLError{Number: mysqlerr.ER_DUP_ENTRY}))
	assert.False(t, isChildForeignKeyError(errors.New("fail")))
}

func TestAppendClientRecordUnknownClient(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	id := "C.0000000000000001"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM clients WHERE client_id = ? FOR UPDATE")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"last_snapshot_timestamp", "last_startup_timestamp", "last_crash_timestamp"}))
	mock.ExpectRollback()

	_, err := ds.AppendClientRecord(context.Background(), id, &fleet.ClientCrash{ClientID: id})
	require.Error(t, err)
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddClientKeywordsForeignKeyError(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	id := "C.0000000000000001"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM clients WHERE client_id = ?)")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	// The client disappeared between the check and the insert.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `client_keywords`")).
		WillReturnError(&mysql.MySQLError{Number: mysqlerr.ER_NO_REFERENCED_ROW_2})
	mock.ExpectRollback()

	err := ds.AddClientKeywords(context.Background(), id, []string{"foo"}, clock.C.Now())
	require.Error(t, err)
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	var uce *fleet.UnknownClientError
	require.ErrorAs(t, err, &uce)
	assert.NotEmpty(t, uce.Internal())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddClientLabelsUnknownClient(t *testing.T) {
	mock, ds := mockDatastore(t)
	defer ds.Close()

	id := "C.0000000000000001"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM clients WHERE client_id = ?)")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := ds.AddClientLabels(context.Background(), id, "admin", []string{"prod"})
	require.Error(t, err)
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateMysqlConnectionString(t *testing.T) {
	conf := config.MysqlConfig{
		Protocol: "tcp",
		Address:  "localhost:3306",
		Username: "clientstore",
		Password: "insecure",
		Database: "clientstore",
	}
	assert.Equal(t,
		"clientstore:insecure@tcp(localhost:3306)/clientstore?charset=utf8mb4&parseTime=true&loc=UTC&time_zone=%27-00%3A00%27&clientFoundRows=true&allowNativePasswords=true",
		generateMysqlConnectionString(conf),
	)

	conf.TLSConfig = "custom"
	assert.Contains(t, generateMysqlConnectionString(conf), "&tls=custom")
}

func TestCheckConfigPasswordConflict(t *testing.T) {
	conf := config.MysqlConfig{Password: "foo", PasswordPath: "/tmp/bar"}
	require.Error(t, checkConfig(&conf))
}

func TestReaderRequirePrimary(t *testing.T) {
	primaryDB, primary, err := sqlmock.New()
	require.NoError(t, err)
	replicaDB, replica, err := sqlmock.New()
	require.NoError(t, err)
	ds := &Datastore{
		writer:  sqlx.NewDb(primaryDB, "sqlmock"),
		replica: sqlx.NewDb(replicaDB, "sqlmock"),
		logger:  log.NewNopLogger(),
		clock:   clock.NewMockClock(),
	}

	replica.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	n, err := ds.CountClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	primary.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err = ds.CountClients(ctxdb.RequirePrimary(context.Background(), true))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, primary.ExpectationsWereMet())
	require.NoError(t, replica.ExpectationsWereMet())
}
