package qorzendb

import (
	"context"
	"database/sql"
	"fmt"
)

// transactional is implemented by connectors whose underlying engine
// supports BEGIN/COMMIT/ROLLBACK (the generic SQL connector).
// The ODBC and AS/400 bridge connectors do not implement it: their Session calls
// run autocommit, matching the original's treatment of AS/400 as a
// non-transactional JDBC source accessed through a stateless RPC call.
type transactional interface {
	BeginExecutor(ctx context.Context) (Executor, *Tx, error)
}

// Session is a transaction-scoped handle to a named connection, the Go
// analogue of DatabaseManager.session()'s context manager. It commits
// automatically when the function passed to Manager.Session returns
// nil, and rolls back on error or panic.
type Session struct {
	Executor
	conn *Connection
	tx   *Tx
}

func newSession(conn *Connection, exec Executor, tx *Tx) *Session {
	return &Session{Executor: exec, conn: conn, tx: tx}
}

func (s *Session) commit() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Commit()
}

func (s *Session) rollback() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Rollback()
}

// runInSession begins a transaction when the connector supports one,
// invokes fn, and commits or rolls back based on the outcome —
// including recovering a panic, rolling back, then re-panicking, which
// is the Go idiom matching the original's try/except/finally shape.
// async selects which of conn's two live-session sets the Session is
// tracked under for the duration of the call.
func runInSession(ctx context.Context, conn *Connection, async bool, fn func(*Session) error) (err error) {
	var sess *Session
	if tc, ok := conn.connector.(transactional); ok {
		exec, tx, berr := tc.BeginExecutor(ctx)
		if berr != nil {
			return NewDatabaseError("failed to begin session", berr, "connection", conn.Name)
		}
		sess = newSession(conn, exec, tx)
	} else {
		sess = newSession(conn, directExecutor{conn: conn}, nil)
	}

	conn.trackSession(async, sess)
	defer conn.untrackSession(async, sess)

	defer func() {
		if r := recover(); r != nil {
			_ = sess.rollback()
			panic(r)
		}
	}()

	if err = fn(sess); err != nil {
		if rerr := sess.rollback(); rerr != nil {
			return fmt.Errorf("qorzendb: rollback failed after %w: %v", err, rerr)
		}
		return err
	}
	return sess.commit()
}

// directExecutor adapts a non-transactional Connector (ODBC, AS/400) to the
// Executor interface by routing reads through ExecuteQuery. Writes are
// rejected: qorzendb does not attempt distributed transactions over the
// AS/400 RPC bridge.
type directExecutor struct {
	conn *Connection
}

func (d directExecutor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, NewDatabaseError("Exec is unsupported on a non-transactional connection", nil, "connection", d.conn.Name)
}

func (d directExecutor) QueryAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	result, err := d.conn.connector.ExecuteQuery(ctx, query, 0, args...)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

func (d directExecutor) QueryRowMap(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rows, err := d.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (d directExecutor) GetInto(ctx context.Context, query string, args []any, dest ...any) error {
	return NewDatabaseError("GetInto is unsupported on a non-transactional connection", nil, "connection", d.conn.Name)
}

func (d directExecutor) QueryDo(ctx context.Context, query string, args []any, scan func(rows *sql.Rows) error) error {
	return NewDatabaseError("QueryDo is unsupported on a non-transactional connection", nil, "connection", d.conn.Name)
}

var _ Executor = directExecutor{}
