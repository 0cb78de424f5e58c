package mysql

import (
	"github.com/VividCortex/mysqlerr"
	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/go-sql-driver/mysql"
)

// isChildForeignKeyError checks if the provided error is a MySQL child foreign
// key error (Error #1452), i.e. a row references a client that does not
// exist.
func isChildForeignKeyError(err error) bool {
	err = ctxerr.Cause(err)
	mysqlErr, ok := err.(*mysql.MySQLError)
	if !ok {
		return false
	}
	return mysqlErr.Number == mysqlerr.ER_NO_REFERENCED_ROW_2
}
