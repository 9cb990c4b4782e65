package qorzendb

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// Connector is the pluggable backend behind a single named Connection.
// Every backend — generic SQL, ODBC, AS/400 — implements the same
// surface so the Manager can treat them uniformly.
type Connector interface {
	// Kind reports which ConnectionType this connector implements.
	Kind() ConnectionType

	// Connect establishes the underlying connection/pool.
	Connect(ctx context.Context, cfg ConnectionConfig) error

	// Disconnect releases the underlying connection/pool.
	Disconnect(ctx context.Context) error

	// ExecuteQuery runs a SELECT-style query and returns its result set.
	// Implementations enforce read-only/whitelist policy before running it.
	// A bare table name (no spaces, e.g. "widgets") is expanded to
	// "SELECT * FROM widgets". When limit is positive and the query does
	// not already carry a dialect row-limit clause of its own, the
	// connector appends its dialect-appropriate clause (LIMIT, TOP, or
	// FETCH FIRST n ROWS ONLY) and sets QueryResult.Truncated once
	// RowCount reaches limit. limit <= 0 disables both behaviors, except
	// on the AS/400 connector, which then uses
	// ConnectionConfig.AS400MaxRows as the limit when that is positive.
	ExecuteQuery(ctx context.Context, query string, limit int, args ...any) (*QueryResult, error)

	// GetTables lists the tables visible to this connection.
	GetTables(ctx context.Context) ([]string, error)

	// GetTableColumns describes the columns of a single table.
	GetTableColumns(ctx context.Context, table string) ([]ColumnMetadata, error)

	// TestConnection checks the connection the connector already holds
	// (a ping, or a bridge round trip for AS/400) without mutating caller
	// state. It does not open a new connection.
	TestConnection(ctx context.Context) error

	// CancelCurrentQuery cancels the most recently started in-flight query,
	// if one is running.
	CancelCurrentQuery() bool

	// GetConnectionInfo returns a small diagnostic summary (driver, dsn-safe
	// description, pool stats where available).
	GetConnectionInfo() map[string]any
}

// writeVerbPattern matches the SQL write verbs that read-only connections
// must reject. Matching is done on an uppercased copy of the statement, per spec's regex-based (not full-parser) SQL
// inspection.
var writeVerbPattern = regexp.MustCompile(`\b(INSERT|UPDATE|DELETE|CREATE|DROP|ALTER|TRUNCATE|GRANT|REVOKE|RENAME)\b`)

// checkReadOnly returns a *SecurityError if cfg.ReadOnly is set and query
// contains a write verb.
func checkReadOnly(cfg ConnectionConfig, query string) error {
	if !cfg.ReadOnly {
		return nil
	}
	upper := strings.ToUpper(query)
	if m := writeVerbPattern.FindString(upper); m != "" {
		return NewSecurityError("write statement rejected on read-only connection",
			"connection", cfg.Name, "verb", m)
	}
	return nil
}

// checkTableWhitelist returns a *SecurityError if cfg.TableWhitelist is
// non-empty and table is not present (case-insensitively) in it.
func checkTableWhitelist(cfg ConnectionConfig, table string) error {
	if len(cfg.TableWhitelist) == 0 || table == "" {
		return nil
	}
	lower := strings.ToLower(table)
	for _, allowed := range cfg.TableWhitelist {
		if strings.ToLower(allowed) == lower {
			return nil
		}
	}
	return NewSecurityError("table not in whitelist", "connection", cfg.Name, "table", table)
}

// extractTableName makes a best-effort guess at the first table name
// referenced by a SELECT-style query, for whitelist checks and access
// logging. This is deliberately a regex heuristic, not a parser — per
// spec, exotic SQL (CTEs, subqueries-only FROM clauses) may not be
// recognized, which is an accepted limitation.
var fromTablePattern = regexp.MustCompile(`(?i)\bFROM\s+([A-Za-z_][A-Za-z0-9_\.]*)`)

func extractTableName(query string) string {
	m := fromTablePattern.FindStringSubmatch(query)
	if len(m) < 2 {
		return ""
	}
	name := m[1]
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// sanitizeErrorMessage strips a connection's username and password from
// an error string before it is logged or surfaced to a caller, mirroring
// BaseDatabaseConnector._sanitize_error_message in the original.
func sanitizeErrorMessage(cfg ConnectionConfig, msg string) string {
	out := msg
	if cfg.Password != "" {
		out = strings.ReplaceAll(out, cfg.Password, "***")
	}
	if cfg.Username != "" {
		out = strings.ReplaceAll(out, cfg.Username, "***")
	}
	return out
}

// sanitizeSQLForLogging truncates long statements and collapses
// whitespace before they are written to a log line.
func sanitizeSQLForLogging(query string, maxLen int) string {
	collapsed := strings.Join(strings.Fields(query), " ")
	if maxLen > 0 && len(collapsed) > maxLen {
		return collapsed[:maxLen] + "...(truncated)"
	}
	return collapsed
}

// bareTableNamePattern matches a query that is nothing but a bare table
// identifier — the "widgets" shorthand ExecuteQuery accepts in place of
// a full "SELECT * FROM widgets".
var bareTableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// existingLimitPattern detects a row-limit clause (of any dialect) the
// caller already supplied, so addRowLimitClause never double-applies
// one.
var existingLimitPattern = regexp.MustCompile(`(?i)\b(LIMIT|TOP|FETCH FIRST)\b`)

// mssqlSelectPattern anchors the SELECT keyword a TOP clause is spliced
// after; it only matches the query's own leading SELECT, never one
// inside a subquery.
var mssqlSelectPattern = regexp.MustCompile(`(?i)^\s*SELECT\s+`)

// expandBareTableName turns a bare table-name query into a full
// "SELECT * FROM <table>", per the Connector.ExecuteQuery contract.
func expandBareTableName(query string) string {
	trimmed := strings.TrimSpace(query)
	if bareTableNamePattern.MatchString(trimmed) {
		return "SELECT * FROM " + trimmed
	}
	return query
}

// limitStyle selects which dialect's row-limit clause addRowLimitClause
// injects.
type limitStyle int

const (
	limitStyleLIMIT limitStyle = iota
	limitStyleTOP
	limitStyleFetchFirst
)

// limitStyleFor maps a ConnectionType to its dialect's row-limit clause
// style, per the Connector.ExecuteQuery contract's last bullet.
func limitStyleFor(kind ConnectionType) limitStyle {
	switch kind {
	case ConnMSSQL:
		return limitStyleTOP
	case ConnOracle, ConnAS400:
		return limitStyleFetchFirst
	default:
		return limitStyleLIMIT
	}
}

// addRowLimitClause appends (or, for SQL Server, splices in) the
// dialect-appropriate row-limit clause, unless query already carries a
// row-limit clause of its own or limit is non-positive.
func addRowLimitClause(query string, style limitStyle, limit int) string {
	if limit <= 0 || existingLimitPattern.MatchString(query) {
		return query
	}
	switch style {
	case limitStyleTOP:
		if !mssqlSelectPattern.MatchString(query) {
			return query
		}
		return mssqlSelectPattern.ReplaceAllString(query, "SELECT TOP "+strconv.Itoa(limit)+" ")
	case limitStyleFetchFirst:
		return strings.TrimRight(query, "; \t\n") + " FETCH FIRST " + strconv.Itoa(limit) + " ROWS ONLY"
	default:
		return strings.TrimRight(query, "; \t\n") + " LIMIT " + strconv.Itoa(limit)
	}
}

// defaultPortFor returns the conventional TCP port for a ConnectionType,
// used to fill in ConnectionConfig.Port when a caller leaves it at zero.
func defaultPortFor(kind ConnectionType) int {
	switch kind {
	case ConnPostgreSQL:
		return 5432
	case ConnMySQL:
		return 3306
	case ConnMSSQL:
		return 1433
	case ConnOracle:
		return 1521
	case ConnAS400:
		return 8471
	default:
		return 0
	}
}
