package qorzendb

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// odbcWriteVerbPattern mirrors the original ODBC connector's slightly
// narrower write-verb list (it omits GRANT/REVOKE/RENAME, which most
// ODBC-fronted systems such as FileMaker do not expose over SQL anyway).
var odbcWriteVerbPattern = regexp.MustCompile(`\b(INSERT|UPDATE|DELETE|CREATE|DROP|ALTER|TRUNCATE)\b`)

// ODBCConnector implements Connector over database/sql using a
// caller-supplied ODBC driver name (e.g. registered by
// github.com/alexbrainman/odbc as "odbc"). qorzendb does not vendor an
// ODBC driver itself — see DESIGN.md for why.
type ODBCConnector struct {
	mu         sync.Mutex
	cfg        ConnectionConfig
	db         *DB
	metrics    *queryMetrics
	cancel     context.CancelFunc
	fileMaker  bool
	checkedFMK bool
}

func NewODBCConnector() *ODBCConnector { return &ODBCConnector{} }

func (c *ODBCConnector) Kind() ConnectionType { return ConnODBC }

func (c *ODBCConnector) Connect(ctx context.Context, cfg ConnectionConfig) error {
	driverName := cfg.ODBCDriverName
	if driverName == "" {
		driverName = "odbc"
	}
	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("DSN=%s;UID=%s;PWD=%s", cfg.Database, cfg.Username, cfg.Password)
	}

	db, err := Open(driverName, dsn,
		WithMaxOpenConns(orDefault(cfg.MaxOpenConns, 5)),
		WithMaxIdleConns(orDefault(cfg.MaxIdleConns, 2)),
		WithConnMaxLifetime(orDefaultDur(cfg.ConnMaxLifetime, 30*time.Minute)),
		WithTimeout(orDefaultDur(cfg.QueryTimeout, 10*time.Second)),
	)
	if err != nil {
		return NewDatabaseError("failed to open ODBC connection", err, "connection", cfg.Name)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		_ = db.Close()
		return NewDatabaseError(sanitizeErrorMessage(cfg, "ODBC connection test failed"), err, "connection", cfg.Name)
	}

	c.mu.Lock()
	c.cfg = cfg
	c.db = db
	c.metrics = newQueryMetrics(cfg.Name, nil)
	c.mu.Unlock()

	c.detectFileMaker(ctx)
	return nil
}

// detectFileMaker probes for the FileMaker_Tables system layout, which
// only exists on FileMaker ODBC sources. FileMaker uses LIMIT for row
// caps rather than the TOP n most other ODBC sources expect.
func (c *ODBCConnector) detectFileMaker(ctx context.Context) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	if db == nil {
		return
	}
	_, err := db.QueryAll(ctx, "SELECT TableName FROM FileMaker_Tables")
	c.mu.Lock()
	c.fileMaker = err == nil
	c.checkedFMK = true
	c.mu.Unlock()
}

func (c *ODBCConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *ODBCConnector) checkReadOnlyODBC(query string) error {
	if !c.cfg.ReadOnly {
		return nil
	}
	upper := strings.ToUpper(query)
	if m := odbcWriteVerbPattern.FindString(upper); m != "" {
		return NewSecurityError("write statement rejected on read-only ODBC connection",
			"connection", c.cfg.Name, "verb", m)
	}
	return nil
}

// limitStyle reports the dialect-limit clause this ODBC source expects:
// FileMaker sources use LIMIT, everything else falls back to the more
// broadly-supported FETCH FIRST n ROWS ONLY.
func (c *ODBCConnector) limitStyle() limitStyle {
	c.mu.Lock()
	isFM := c.fileMaker
	c.mu.Unlock()
	if isFM {
		return limitStyleLIMIT
	}
	return limitStyleFetchFirst
}

func (c *ODBCConnector) ExecuteQuery(ctx context.Context, query string, limit int, args ...any) (*QueryResult, error) {
	c.mu.Lock()
	db, cfg := c.db, c.cfg
	c.mu.Unlock()
	if db == nil {
		return nil, NewDatabaseError("connector not connected", nil, "connection", cfg.Name)
	}

	query = expandBareTableName(query)
	if err := c.checkReadOnlyODBC(query); err != nil {
		return nil, err
	}
	table := extractTableName(query)
	if err := checkTableWhitelist(cfg, table); err != nil {
		return nil, err
	}
	query = addRowLimitClause(query, c.limitStyle(), limit)

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
		return nil, NewDatabaseError(sanitizeErrorMessage(cfg, "ODBC query execution failed"), err,
			"connection", cfg.Name, "table", table)
	}

	return &QueryResult{
		Columns:      columnsFromRows(rows),
		Rows:         rows,
		RowCount:     len(rows),
		Query:        query,
		Duration:     dur,
		ConnectionID: cfg.Name,
		ExecutedAt:   start,
		Truncated:    limit > 0 && len(rows) >= limit,
	}, nil
}

// odbcTableLister is implemented by ODBC driver connections that expose
// a native SQLTables() catalog cursor (e.g. github.com/alexbrainman/odbc's
// *odbc.Conn). Most database/sql drivers don't implement it; it's
// consulted only once INFORMATION_SCHEMA has already failed.
type odbcTableLister interface {
	Tables() ([]string, error)
}

// commonTableNames is probed one at a time as a last resort, when a
// source exposes neither INFORMATION_SCHEMA nor a driver-level catalog
// cursor — the same guess-and-check fallback the original connector
// falls back to against opaque ODBC sources.
var commonTableNames = []string{
	"customers", "orders", "products", "items", "users", "accounts",
	"invoices", "transactions", "employees", "inventory",
}

// GetTables walks a three-tier fallback: INFORMATION_SCHEMA.TABLES (or
// FileMaker_Tables for FileMaker sources), then the driver's native
// table-listing cursor if it exposes one, then best-effort sampling of
// commonly-named tables via a 1-row probe.
func (c *ODBCConnector) GetTables(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	db, cfg, isFM := c.db, c.cfg, c.fileMaker
	c.mu.Unlock()
	if db == nil {
		return nil, NewDatabaseError("connector not connected", nil, "connection", cfg.Name)
	}

	query := "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES"
	if isFM {
		query = "SELECT TableName FROM FileMaker_Tables"
	}
	if rows, err := db.QueryAll(ctx, query); err == nil {
		return tableNamesFromRows(rows), nil
	}

	if tables, err := c.driverTableCursor(ctx); err == nil {
		return tables, nil
	}

	return c.sampleCommonTables(ctx), nil
}

func tableNamesFromRows(rows []map[string]any) []string {
	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		for _, v := range row {
			if s, ok := v.(string); ok {
				tables = append(tables, s)
				break
			}
		}
	}
	return tables
}

// driverTableCursor asks the underlying driver connection for a native
// SQLTables() cursor, when it exposes one.
func (c *ODBCConnector) driverTableCursor(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	wrapper := c.db
	c.mu.Unlock()
	if wrapper == nil || wrapper.db == nil {
		return nil, NewDatabaseError("connector not connected", nil)
	}

	sqlConn, err := wrapper.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer sqlConn.Close()

	var tables []string
	listErr := fmt.Errorf("qorzendb: ODBC driver does not expose a table cursor")
	err = sqlConn.Raw(func(driverConn any) error {
		if lister, ok := driverConn.(odbcTableLister); ok {
			tables, listErr = lister.Tables()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, listErr
}

// sampleCommonTables probes each name in commonTableNames with a 1-row
// SELECT and returns the ones that didn't error out.
func (c *ODBCConnector) sampleCommonTables(ctx context.Context) []string {
	c.mu.Lock()
	db, style := c.db, c.limitStyle()
	c.mu.Unlock()
	if db == nil {
		return nil
	}
	var found []string
	for _, name := range commonTableNames {
		probe := addRowLimitClause("SELECT * FROM "+name, style, 1)
		if _, err := db.QueryAll(ctx, probe); err == nil {
			found = append(found, name)
		}
	}
	return found
}

func (c *ODBCConnector) GetTableColumns(ctx context.Context, table string) ([]ColumnMetadata, error) {
	c.mu.Lock()
	db, cfg := c.db, c.cfg
	c.mu.Unlock()
	if db == nil {
		return nil, NewDatabaseError("connector not connected", nil, "connection", cfg.Name)
	}
	if err := checkTableWhitelist(cfg, table); err != nil {
		return nil, err
	}
	rows, err := db.QueryAll(ctx, "SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = ?", table)
	if err != nil {
		return nil, NewDatabaseError("failed to describe ODBC table", err, "connection", cfg.Name, "table", table)
	}
	cols := make([]ColumnMetadata, 0, len(rows))
	for _, row := range rows {
		cm := columnMetadataFromRow(lowercaseKeys(row))
		cm.TableName = table
		cols = append(cols, cm)
	}
	return cols, nil
}

func lowercaseKeys(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[strings.ToLower(k)] = v
	}
	return out
}

// ODBCConnector deliberately does not implement transactional: ODBC
// sources are treated as a non-transactional, autocommit catalog, the
// same posture as the AS/400 bridge. Session/AsyncSession route ODBC
// connections through directExecutor, whose Exec rejects writes — only
// GenericConnector (all five SQL kinds) publishes a transactional
// adapter among the connectors this package ships.

func (c *ODBCConnector) TestConnection(ctx context.Context) error {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	if db != nil {
		return db.Ping(ctx)
	}
	return nil
}

func (c *ODBCConnector) CancelCurrentQuery() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return true
}

func (c *ODBCConnector) recentMetrics() *queryMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *ODBCConnector) GetConnectionInfo() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"kind":       ConnODBC,
		"name":       c.cfg.Name,
		"driver":     c.cfg.ODBCDriverName,
		"file_maker": c.fileMaker,
		"read_only":  c.cfg.ReadOnly,
	}
}

var _ Connector = (*ODBCConnector)(nil)
