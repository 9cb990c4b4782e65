package qorzendb

import (
	"context"
	"database/sql"
	"time"
)

// Executor defines the interface for executing database queries against
// either a live connection or a transaction. DB and Tx both implement it,
// giving callers a single API regardless of whether they are inside a
// transaction.
type Executor interface {
	// Exec executes a query that doesn't return rows (INSERT/UPDATE/DELETE/DDL).
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	// QueryAll returns all rows as []map[string]any.
	QueryAll(ctx context.Context, query string, args ...any) ([]map[string]any, error)

	// QueryRowMap returns the first row as map[string]any (or ErrNotFound).
	QueryRowMap(ctx context.Context, query string, args ...any) (map[string]any, error)

	// GetInto scans a single row into dest pointers.
	GetInto(ctx context.Context, query string, args []any, dest ...any) error

	// QueryDo executes a query and calls scan for each row (streaming).
	QueryDo(ctx context.Context, query string, args []any, scan func(rows *sql.Rows) error) error
}

// DB wraps *sql.DB and provides query execution with timeout handling.
// DB implements Executor.
type DB struct {
	logger     Logger
	driverName string
	db         *sql.DB
	timeout    time.Duration
	logQueries bool
	logArgs    bool
}

// Tx wraps *sql.Tx and provides transaction-scoped query execution.
// Tx implements Executor.
type Tx struct {
	logger     Logger
	driverName string
	tx         *sql.Tx
	timeout    time.Duration
	logQueries bool
	logArgs    bool
}

// Config holds database connection and pool configuration for the
// low-level DB wrapper, as used by the generic and ODBC connectors.
type Config struct {
	Logger          Logger
	DSN             string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	OpTimeout       time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	LogQueries      bool
	LogArgs         bool
}

// Option configures a Config. Used with Open.
type Option func(*Config)

// ConnectionType enumerates the kinds of database a ConnectionConfig can
// describe. Kept as a string type so it round-trips cleanly through
// configuration files and the management tables.
type ConnectionType string

const (
	ConnPostgreSQL ConnectionType = "postgresql"
	ConnMySQL      ConnectionType = "mysql"
	ConnSQLite     ConnectionType = "sqlite"
	ConnMSSQL      ConnectionType = "mssql"
	ConnOracle     ConnectionType = "oracle"
	ConnODBC       ConnectionType = "odbc"
	ConnAS400      ConnectionType = "as400"
)

// ConnectionConfig describes how to reach a single named database
// connection. It is the Go analogue of qorzen's
// DatabaseConnectionConfig.
type ConnectionConfig struct {
	Name     string
	Kind     ConnectionType
	Host     string
	Port     int
	Database string
	Username string
	Password string
	DSN      string // overrides Host/Port/Database/Username/Password when set

	// Pool tuning, applied to the underlying *sql.DB.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration

	// ODBC-specific.
	ODBCDriverName string

	// AS/400-specific.
	AS400DriverJar  string
	AS400BridgeAddr string // TCP host:port of the as400bridge helper
	AS400MaxRows    int    // 0 disables the implicit FETCH FIRST n ROWS ONLY cap

	// Security.
	ReadOnly       bool
	TableWhitelist []string // empty means "no whitelist enforced"

	// Extra driver-specific options. None of the built-in connectors
	// read them.
	Options map[string]string
}

// ColumnMetadata describes a single column returned from a query or
// reported by GetTableColumns.
type ColumnMetadata struct {
	Name       string
	DataType   string
	TypeCode   int    // driver-reported numeric type code, 0 when unknown
	Precision  int    // numeric precision, 0 when not applicable/unknown
	Scale      int    // numeric scale, 0 when not applicable/unknown
	TableName  string // owning table, set by GetTableColumns; empty for ad-hoc query columns
	Nullable   bool
	PrimaryKey bool
}

// QueryResult is the uniform shape every connector returns for a
// SELECT-style query.
type QueryResult struct {
	Columns      []ColumnMetadata
	Rows         []map[string]any
	RowCount     int
	Query        string
	Duration     time.Duration
	MappedFields map[string]string // set by the field mapper, nil otherwise
	ConnectionID string
	ExecutedAt   time.Time
	Truncated    bool   // true when limit was positive and RowCount reached it
	HasError     bool
	ErrorMessage string
}

// FieldMapping renames columns of a given table on a given connection
// at query time, without touching the underlying schema.
type FieldMapping struct {
	ID             string
	ConnectionName string
	TableName      string
	FieldMap       map[string]string // source column -> display name
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HistorySchedule describes a recurring snapshot of a saved query
// against a data connection, stored into a history connection.
type HistorySchedule struct {
	ID               string
	Name             string
	DataConnection   string
	HistoryConn      string
	SavedQueryID     string
	Frequency        string // e.g. "1h", parsed by ParseFrequency
	RetentionDays    int    // 0 means retain nothing: every run purges all of the schedule's entries, including its own
	Enabled          bool
	LastRun          *time.Time
	CreatedAt        time.Time
}

// HistoryEntry records one executed run of a HistorySchedule.
type HistoryEntry struct {
	ID         string
	ScheduleID string
	SnapshotID string
	RunAt      time.Time
	RowCount   int
	Error      string
}

// HistoryData is a single captured row belonging to a HistoryEntry's
// snapshot.
type HistoryData struct {
	SnapshotID string
	RowIndex   int
	Data       map[string]any
}

// SavedQuery is the external contract a HistorySchedule refers to by
// SavedQueryID; qorzendb does not manage the table's contents, only
// reads from it. Parameters is the raw JSON text stored in the
// db_saved_queries.parameters column.
type SavedQuery struct {
	ID         string
	QueryText  string
	Parameters string
}

// ValidationRuleType enumerates the built-in rule evaluators.
type ValidationRuleType string

const (
	RuleRange       ValidationRuleType = "range"
	RulePattern     ValidationRuleType = "pattern"
	RuleNotNull     ValidationRuleType = "not_null"
	RuleLength      ValidationRuleType = "length"
	RuleEnumeration ValidationRuleType = "enumeration"
	RuleReference   ValidationRuleType = "reference"
	RuleUnique      ValidationRuleType = "unique"
	RuleCustom      ValidationRuleType = "custom"
)

// ValidationRule describes one check to run against a field of a table.
type ValidationRule struct {
	ID             string
	ConnectionName string
	TableName      string
	FieldName      string
	RuleType       ValidationRuleType
	Parameters     map[string]any
	Enabled        bool
	CreatedAt      time.Time
}

// ValidationResult is the outcome of evaluating one ValidationRule
// against one record.
type ValidationResult struct {
	RuleID      string
	RecordKey   string
	FieldName   string
	Passed      bool
	Message     string
	EvaluatedAt time.Time
}
