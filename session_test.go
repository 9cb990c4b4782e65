package qorzendb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockGenericConnection(t *testing.T, name string) (*Connection, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	connector := &GenericConnector{
		cfg:     ConnectionConfig{Name: name},
		db:      NewDB(sqlDB, "sqlmock", 0),
		metrics: newQueryMetrics(name, nil),
	}
	return &Connection{Name: name, cfg: connector.cfg, connector: connector, connected: true}, mock
}

func TestRunInSession_CommitsOnSuccess(t *testing.T) {
	conn, mock := newMockGenericConnection(t, "reporting")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO widgets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := runInSession(context.Background(), conn, false, func(s *Session) error {
		_, err := s.Exec(context.Background(), "INSERT INTO widgets (name) VALUES (?)", "sprocket")
		return err
	})
	if err != nil {
		t.Fatalf("runInSession returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRunInSession_RollsBackOnError(t *testing.T) {
	conn, mock := newMockGenericConnection(t, "reporting")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO widgets").WillReturnError(ErrNotFound)
	mock.ExpectRollback()

	var captured *Session
	err := runInSession(context.Background(), conn, false, func(s *Session) error {
		captured = s
		_, err := s.Exec(context.Background(), "INSERT INTO widgets (name) VALUES (?)", "sprocket")
		return err
	})
	if err == nil {
		t.Fatal("expected runInSession to surface the error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if conn.hasSession(false, captured) {
		t.Error("expected the rolled-back session to no longer be in the live sync-session set")
	}
}

func TestRunInSession_RollsBackOnPanic(t *testing.T) {
	conn, mock := newMockGenericConnection(t, "reporting")
	mock.ExpectBegin()
	mock.ExpectRollback()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected the panic to propagate after rollback")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	}()

	_ = runInSession(context.Background(), conn, false, func(s *Session) error {
		panic("boom")
	})
}

func TestRunInSession_TracksLiveSessionDuringCall(t *testing.T) {
	conn, mock := newMockGenericConnection(t, "reporting")
	mock.ExpectBegin()
	mock.ExpectCommit()

	var sawLive bool
	err := runInSession(context.Background(), conn, true, func(s *Session) error {
		sawLive = conn.hasSession(true, s)
		return nil
	})
	if err != nil {
		t.Fatalf("runInSession returned error: %v", err)
	}
	if !sawLive {
		t.Error("expected the session to be present in the live async-session set while fn runs")
	}
	if syncN, asyncN := conn.LiveSessionCounts(); syncN != 0 || asyncN != 0 {
		t.Errorf("expected both live-session sets to be empty after commit, got sync=%d async=%d", syncN, asyncN)
	}
}

func TestRunInSession_NonTransactionalUsesDirectExecutor(t *testing.T) {
	conn := &Connection{Name: "as400", connector: NewAS400Connector()}
	err := runInSession(context.Background(), conn, false, func(s *Session) error {
		_, err := s.Exec(context.Background(), "INSERT INTO widgets (name) VALUES (?)", "sprocket")
		if err == nil {
			t.Error("expected Exec to be rejected on a non-transactional connector")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("runInSession returned error: %v", err)
	}
}

func TestRunInSession_ODBCIsNonTransactional(t *testing.T) {
	conn := &Connection{Name: "legacy", connector: NewODBCConnector()}
	err := runInSession(context.Background(), conn, false, func(s *Session) error {
		_, err := s.Exec(context.Background(), "INSERT INTO widgets (name) VALUES (?)", "sprocket")
		if err == nil {
			t.Error("expected Exec to be rejected on ODBC, which publishes no transactional adapter")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("runInSession returned error: %v", err)
	}
}
