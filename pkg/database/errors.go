package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	errs "poi-tiering/pkg/errors"
)

const (
	mysqlErrDupEntry        = 1062
	mysqlErrRowIsReferenced = 1451
	mysqlErrNoReferencedRow = 1452
)

// constraintKind reports whether err is a unique or foreign key violation
// raised by either driver.
func constraintKind(err error) (errs.ConstraintKind, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDupEntry:
			return errs.ConstraintUnique, true
		case mysqlErrRowIsReferenced, mysqlErrNoReferencedRow:
			return errs.ConstraintForeignKey, true
		}
		return "", false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return errs.ConstraintUnique, true
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return errs.ConstraintForeignKey, true
		}
	}
	return "", false
}

// wrapWrite converts a driver error from a write into either a
// ConstraintViolationError or a DBError.
func wrapWrite(op, msg string, err error) error {
	if err == nil {
		return nil
	}
	if kind, ok := constraintKind(err); ok {
		return errs.NewConstraintViolation(op, kind, err)
	}
	return errs.NewDB(op, msg, err)
}
