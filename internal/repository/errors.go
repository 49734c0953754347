// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values let the service and handler layers
// tell failure scenarios apart with errors.Is.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by id, token or name matches no
// row.  Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique key,
// for example a second rating for the same course and user.  Handlers
// translate it into HTTP 409.
var ErrDuplicate = errors.New("duplicate")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// mapWriteErr converts driver errors raised by INSERT/UPDATE into the
// package sentinels.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}
