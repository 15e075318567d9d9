// Package repository implements the MySQL-backed stores. Every exported
// method translates driver failures into the apperr taxonomy so that
// higher layers never inspect driver types: sql.ErrNoRows becomes
// apperr.ErrNotFound, a unique-key violation becomes a duplicate error,
// deadlocks become apperr.ErrConflict, rejected column values become
// apperr.ErrInvalidValue, and connection or timeout failures become
// apperr.ErrStoreUnavailable.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/estate-ledger/internal/apperr"
)

const (
	mysqlDuplicateEntry      = 1062
	mysqlLockWaitTimeout     = 1205
	mysqlDeadlock            = 1213
	mysqlOutOfRange          = 1264
	mysqlCheckViolated       = 3819
	mysqlDataTooLong         = 1406
	mysqlTruncatedWrongValue = 1366
)

// classify maps a database error onto the taxonomy. Errors that already
// belong to it pass through untouched, which keeps business errors raised
// inside transaction callbacks intact.
func classify(err error) error {
	if err == nil || apperr.Known(err) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if unavailable(err) {
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDeadlock, mysqlLockWaitTimeout:
			return fmt.Errorf("%w: concurrent update, retry the request", apperr.ErrConflict)
		case mysqlOutOfRange, mysqlCheckViolated, mysqlTruncatedWrongValue:
			return fmt.Errorf("%w: %s", apperr.ErrInvalidValue, me.Message)
		case mysqlDataTooLong:
			return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, me.Message)
		}
	}
	return err
}

func unavailable(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, sql.ErrConnDone):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// withTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	committed = true
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
