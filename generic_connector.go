package qorzendb

import (
	"context"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"
)

// driverNameFor maps a ConnectionType to the database/sql driver name
// registered by that dialect's import above.
func driverNameFor(kind ConnectionType) (string, error) {
	switch kind {
	case ConnPostgreSQL:
		return "postgres", nil
	case ConnMySQL:
		return "mysql", nil
	case ConnSQLite:
		return "sqlite3", nil
	case ConnMSSQL:
		return "sqlserver", nil
	case ConnOracle:
		return "oracle", nil
	default:
		return "", fmt.Errorf("qorzendb: generic connector does not support kind %q", kind)
	}
}

// buildDSN constructs a driver-appropriate DSN from a ConnectionConfig
// when cfg.DSN is not already supplied.
func buildDSN(cfg ConnectionConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPortFor(cfg.Kind)
	}
	switch cfg.Kind {
	case ConnPostgreSQL:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
	case ConnMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
	case ConnSQLite:
		return cfg.Database
	case ConnMSSQL:
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s", cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
	case ConnOracle:
		return fmt.Sprintf("oracle://%s:%s@%s:%d/%s", cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
	default:
		return ""
	}
}

// GenericConnector implements Connector for any dialect reachable
// through database/sql: PostgreSQL, MySQL, SQLite, SQL Server, Oracle.
type GenericConnector struct {
	mu      sync.Mutex
	cfg     ConnectionConfig
	db      *DB
	metrics *queryMetrics
	cancel  context.CancelFunc
}

// NewGenericConnector constructs a GenericConnector; call Connect before use.
func NewGenericConnector() *GenericConnector {
	return &GenericConnector{}
}

func (c *GenericConnector) Kind() ConnectionType { return c.cfg.Kind }

func (c *GenericConnector) Connect(ctx context.Context, cfg ConnectionConfig) error {
	driverName, err := driverNameFor(cfg.Kind)
	if err != nil {
		return NewConfigurationError(err.Error(), "connection", cfg.Name)
	}

	dsn := buildDSN(cfg)
	db, err := Open(driverName, dsn,
		WithMaxOpenConns(orDefault(cfg.MaxOpenConns, 10)),
		WithMaxIdleConns(orDefault(cfg.MaxIdleConns, 5)),
		WithConnMaxLifetime(orDefaultDur(cfg.ConnMaxLifetime, 30*time.Minute)),
		WithConnMaxIdleTime(orDefaultDur(cfg.ConnMaxIdleTime, 5*time.Minute)),
		WithTimeout(orDefaultDur(cfg.QueryTimeout, 5*time.Second)),
	)
	if err != nil {
		return NewDatabaseError("failed to open connection", err, "connection", cfg.Name)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		_ = db.Close()
		return NewDatabaseError(sanitizeErrorMessage(cfg, "connection test failed"), err, "connection", cfg.Name)
	}

	c.mu.Lock()
	c.cfg = cfg
	c.db = db
	c.metrics = newQueryMetrics(cfg.Name, nil)
	c.mu.Unlock()
	return nil
}

func (c *GenericConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *GenericConnector) ExecuteQuery(ctx context.Context, query string, limit int, args ...any) (*QueryResult, error) {
	c.mu.Lock()
	db, cfg := c.db, c.cfg
	c.mu.Unlock()
	if db == nil {
		return nil, NewDatabaseError("connector not connected", nil, "connection", cfg.Name)
	}

	query = expandBareTableName(query)
	if err := checkReadOnly(cfg, query); err != nil {
		return nil, err
	}
	table := extractTableName(query)
	if err := checkTableWhitelist(cfg, table); err != nil {
		return nil, err
	}
	query = addRowLimitClause(query, limitStyleFor(cfg.Kind), limit)

	queryCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	start := time.Now()
	rows, err := db.QueryAll(queryCtx, query, args...)
	dur := time.Since(start)
	c.metrics.record(sanitizeSQLForLogging(query, slowQueryLogTruncate), dur, err)
	if err != nil {
		return nil, NewDatabaseError(sanitizeErrorMessage(cfg, "query execution failed"), err,
			"connection", cfg.Name, "table", table)
	}

	cols := columnsFromRows(rows)
	return &QueryResult{
		Columns:      cols,
		Rows:         rows,
		RowCount:     len(rows),
		Query:        query,
		Duration:     dur,
		ConnectionID: cfg.Name,
		ExecutedAt:   start,
		Truncated:    limit > 0 && len(rows) >= limit,
	}, nil
}

// columnsFromRows derives a ColumnMetadata slice from the first row of
// a []map[string]any result set. Nullability/primary-key information is
// not recoverable from a plain result set, so both default to false;
// GetTableColumns is the authoritative source for that metadata.
func columnsFromRows(rows []map[string]any) []ColumnMetadata {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]ColumnMetadata, 0, len(rows[0]))
	for name := range rows[0] {
		cols = append(cols, ColumnMetadata{Name: name})
	}
	return cols
}

func (c *GenericConnector) GetTables(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	db, cfg := c.db, c.cfg
	c.mu.Unlock()
	if db == nil {
		return nil, NewDatabaseError("connector not connected", nil, "connection", cfg.Name)
	}

	query, hasQuery := tableListQueryFor(cfg.Kind)
	if !hasQuery {
		return nil, NewDatabaseError("GetTables unsupported for kind", nil, "kind", cfg.Kind)
	}
	rows, err := db.QueryAll(ctx, query)
	if err != nil {
		return nil, NewDatabaseError("failed to list tables", err, "connection", cfg.Name)
	}
	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		for _, v := range row {
			if s, ok := v.(string); ok {
				tables = append(tables, s)
				break
			}
		}
	}
	return tables, nil
}

func tableListQueryFor(kind ConnectionType) (string, bool) {
	switch kind {
	case ConnPostgreSQL:
		return "SELECT table_name FROM information_schema.tables WHERE table_schema='public'", true
	case ConnMySQL:
		return "SHOW TABLES", true
	case ConnSQLite:
		return "SELECT name FROM sqlite_master WHERE type='table'", true
	case ConnMSSQL:
		return "SELECT table_name FROM information_schema.tables", true
	case ConnOracle:
		return "SELECT table_name FROM user_tables", true
	default:
		return "", false
	}
}

func (c *GenericConnector) GetTableColumns(ctx context.Context, table string) ([]ColumnMetadata, error) {
	c.mu.Lock()
	db, cfg := c.db, c.cfg
	c.mu.Unlock()
	if db == nil {
		return nil, NewDatabaseError("connector not connected", nil, "connection", cfg.Name)
	}
	if err := checkTableWhitelist(cfg, table); err != nil {
		return nil, err
	}

	query, args, hasQuery := columnQueryFor(cfg.Kind, table)
	if !hasQuery {
		return nil, NewDatabaseError("GetTableColumns unsupported for kind", nil, "kind", cfg.Kind)
	}
	rows, err := db.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, NewDatabaseError("failed to describe table", err, "connection", cfg.Name, "table", table)
	}

	cols := make([]ColumnMetadata, 0, len(rows))
	for _, row := range rows {
		cm := columnMetadataFromRow(row)
		cm.TableName = table
		cols = append(cols, cm)
	}
	return cols, nil
}

func columnQueryFor(kind ConnectionType, table string) (string, []any, bool) {
	switch kind {
	case ConnPostgreSQL, ConnMSSQL:
		return "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_name = $1", []any{table}, true
	case ConnMySQL:
		return fmt.Sprintf("SHOW COLUMNS FROM %s", table), nil, true
	case ConnSQLite:
		return fmt.Sprintf("PRAGMA table_info(%s)", table), nil, true
	case ConnOracle:
		return "SELECT column_name, data_type, nullable FROM user_tab_columns WHERE table_name = :1", []any{table}, true
	default:
		return "", nil, false
	}
}

func columnMetadataFromRow(row map[string]any) ColumnMetadata {
	cm := ColumnMetadata{}
	if v, ok := row["column_name"]; ok {
		cm.Name = fmt.Sprint(v)
	} else if v, ok := row["field"]; ok {
		cm.Name = fmt.Sprint(v)
	} else if v, ok := row["name"]; ok {
		cm.Name = fmt.Sprint(v)
	}
	if v, ok := row["data_type"]; ok {
		cm.DataType = fmt.Sprint(v)
	} else if v, ok := row["type"]; ok {
		cm.DataType = fmt.Sprint(v)
	}
	if v, ok := row["is_nullable"]; ok {
		cm.Nullable = fmt.Sprint(v) == "YES"
	} else if v, ok := row["nullable"]; ok {
		cm.Nullable = fmt.Sprint(v) == "YES" || fmt.Sprint(v) == "Y"
	} else if v, ok := row["notnull"]; ok {
		cm.Nullable = fmt.Sprint(v) == "0"
	}
	if v, ok := row["pk"]; ok {
		cm.PrimaryKey = fmt.Sprint(v) != "0"
	}
	return cm
}

// BeginExecutor starts a transaction on the underlying *sql.DB, satisfying
// the transactional interface used by Session.
func (c *GenericConnector) BeginExecutor(ctx context.Context) (Executor, *Tx, error) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	if db == nil {
		return nil, nil, NewDatabaseError("connector not connected", nil, "connection", c.cfg.Name)
	}
	tx, err := db.Begin(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	return tx, tx, nil
}

func (c *GenericConnector) TestConnection(ctx context.Context) error {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	if db != nil {
		return db.Ping(ctx)
	}
	return nil
}

func (c *GenericConnector) CancelCurrentQuery() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return true
}

// recentMetrics exposes this connector's ring-buffer/Prometheus state
// to Manager.Status.
func (c *GenericConnector) recentMetrics() *queryMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *GenericConnector) GetConnectionInfo() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := map[string]any{
		"kind":      c.cfg.Kind,
		"name":      c.cfg.Name,
		"host":      c.cfg.Host,
		"port":      c.cfg.Port,
		"database":  c.cfg.Database,
		"read_only": c.cfg.ReadOnly,
	}
	return info
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

var _ Connector = (*GenericConnector)(nil)
