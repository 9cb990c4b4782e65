package qorzendb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockGenericConnector(t *testing.T, cfg ConnectionConfig) (*GenericConnector, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	if cfg.Name == "" {
		cfg.Name = "reporting"
	}
	return &GenericConnector{
		cfg:     cfg,
		db:      NewDB(sqlDB, "sqlmock", 0),
		metrics: newQueryMetrics(cfg.Name, nil),
	}, mock
}

func TestGenericConnector_ExecuteQuery_ReturnsRows(t *testing.T) {
	c, mock := newMockGenericConnector(t, ConnectionConfig{Kind: ConnSQLite})
	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "sprocket")
	mock.ExpectQuery("SELECT \\* FROM widgets").WillReturnRows(rows)

	result, err := c.ExecuteQuery(context.Background(), "SELECT * FROM widgets", 0)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}
	if result.RowCount != 1 || result.Rows[0]["name"] != "sprocket" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestGenericConnector_ExecuteQuery_AppliesLimitAndTruncation(t *testing.T) {
	c, mock := newMockGenericConnector(t, ConnectionConfig{Kind: ConnSQLite})
	rows := sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2)
	mock.ExpectQuery("SELECT \\* FROM widgets LIMIT 2").WillReturnRows(rows)

	result, err := c.ExecuteQuery(context.Background(), "SELECT * FROM widgets", 2)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}
	if !result.Truncated {
		t.Error("expected Truncated to be true when row count reaches the limit")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGenericConnector_ExecuteQuery_ExpandsBareTableName(t *testing.T) {
	c, mock := newMockGenericConnector(t, ConnectionConfig{Kind: ConnSQLite})
	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "sprocket")
	mock.ExpectQuery("SELECT \\* FROM widgets").WillReturnRows(rows)

	result, err := c.ExecuteQuery(context.Background(), "widgets", 0)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}
	if result.RowCount != 1 {
		t.Errorf("expected a bare table name to expand into a SELECT *, got %+v", result)
	}
}

func TestGenericConnector_ExecuteQuery_RejectsWriteOnReadOnly(t *testing.T) {
	c, _ := newMockGenericConnector(t, ConnectionConfig{Kind: ConnSQLite, ReadOnly: true})
	_, err := c.ExecuteQuery(context.Background(), "DELETE FROM widgets", 0)
	if err == nil {
		t.Fatal("expected a write query to be rejected on a read-only connection")
	}
}

func TestGenericConnector_ExecuteQuery_RejectsNonWhitelistedTable(t *testing.T) {
	c, _ := newMockGenericConnector(t, ConnectionConfig{Kind: ConnSQLite, TableWhitelist: []string{"widgets"}})
	_, err := c.ExecuteQuery(context.Background(), "SELECT * FROM secrets", 0)
	if err == nil {
		t.Fatal("expected a query against a non-whitelisted table to be rejected")
	}
}

func TestGenericConnector_ExecuteQuery_NotConnected(t *testing.T) {
	c := NewGenericConnector()
	_, err := c.ExecuteQuery(context.Background(), "SELECT 1", 0)
	if err == nil {
		t.Fatal("expected an error when the connector is not connected")
	}
}

func TestTableListQueryFor(t *testing.T) {
	cases := map[ConnectionType]bool{
		ConnPostgreSQL: true, ConnMySQL: true, ConnSQLite: true, ConnMSSQL: true, ConnOracle: true, ConnODBC: false,
	}
	for kind, want := range cases {
		_, ok := tableListQueryFor(kind)
		if ok != want {
			t.Errorf("tableListQueryFor(%q) ok = %v, want %v", kind, ok, want)
		}
	}
}

func TestGenericConnector_GetTables(t *testing.T) {
	c, mock := newMockGenericConnector(t, ConnectionConfig{Kind: ConnSQLite})
	rows := sqlmock.NewRows([]string{"name"}).AddRow("widgets").AddRow("gadgets")
	mock.ExpectQuery("SELECT name FROM sqlite_master").WillReturnRows(rows)

	tables, err := c.GetTables(context.Background())
	if err != nil {
		t.Fatalf("GetTables failed: %v", err)
	}
	if len(tables) != 2 {
		t.Errorf("expected 2 tables, got %v", tables)
	}
}

func TestGenericConnector_CancelCurrentQuery(t *testing.T) {
	c := NewGenericConnector()
	if c.CancelCurrentQuery() {
		t.Error("expected CancelCurrentQuery to report false with no in-flight query")
	}
	_, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if !c.CancelCurrentQuery() {
		t.Error("expected CancelCurrentQuery to report true and clear the cancel func")
	}
	if c.cancel != nil {
		t.Error("expected cancel to be cleared after use")
	}
}

func TestGenericConnector_GetConnectionInfo(t *testing.T) {
	c, _ := newMockGenericConnector(t, ConnectionConfig{Name: "reporting", Kind: ConnPostgreSQL, Host: "db.internal", Port: 5432})
	info := c.GetConnectionInfo()
	if info["name"] != "reporting" || info["host"] != "db.internal" {
		t.Errorf("unexpected connection info: %+v", info)
	}
}
