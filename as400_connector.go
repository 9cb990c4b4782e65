package qorzendb

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// as400WriteVerbPattern matches the full write-verb list (unlike the
// ODBC connector, the AS/400 bridge also rejects GRANT/REVOKE/RENAME,
// matching the stricter posture of the original connector).
var as400WriteVerbPattern = regexp.MustCompile(`\b(INSERT|UPDATE|DELETE|CREATE|DROP|ALTER|TRUNCATE|GRANT|REVOKE|RENAME)\b`)

// as400NamedParamPattern finds :name placeholders for rewriting to `?`.
var as400NamedParamPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// AS400Connector implements Connector by delegating to an out-of-process
// bridge (cmd/as400bridge) over net/rpc. The JVM/JT400 driver, if any,
// lives entirely in that helper process.
type AS400Connector struct {
	mu      sync.Mutex
	cfg     ConnectionConfig
	client  *as400RPCClient
	pool    *ants.Pool
	metrics *queryMetrics
	cancel  context.CancelFunc
}

func NewAS400Connector() *AS400Connector { return &AS400Connector{} }

func (c *AS400Connector) Kind() ConnectionType { return ConnAS400 }

func (c *AS400Connector) Connect(ctx context.Context, cfg ConnectionConfig) error {
	addr := cfg.AS400BridgeAddr
	if addr == "" {
		return NewConfigurationError("AS400BridgeAddr is required", "connection", cfg.Name)
	}

	client, err := dialAS400Bridge("tcp", addr, orDefaultDur(cfg.QueryTimeout, 10*time.Second))
	if err != nil {
		return NewDatabaseError("failed to dial AS/400 bridge", err, "connection", cfg.Name, "addr", addr)
	}

	if err := client.Connect(AS400ConnectArgs{
		Host: cfg.Host, Port: orDefault(cfg.Port, defaultPortFor(ConnAS400)),
		Database: cfg.Database, Username: cfg.Username, Password: cfg.Password,
		DriverJar: cfg.AS400DriverJar,
	}); err != nil {
		_ = client.Close()
		return NewDatabaseError(sanitizeErrorMessage(cfg, "AS/400 bridge connect failed"), err, "connection", cfg.Name)
	}

	pool, err := ants.NewPool(4)
	if err != nil {
		_ = client.Close()
		return NewDatabaseError("failed to start AS/400 worker pool", err, "connection", cfg.Name)
	}

	c.mu.Lock()
	c.cfg = cfg
	c.client = client
	c.pool = pool
	c.metrics = newQueryMetrics(cfg.Name, nil)
	c.mu.Unlock()
	return nil
}

func (c *AS400Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Disconnect()
	c.client.Close()
	if c.pool != nil {
		c.pool.Release()
	}
	c.client = nil
	c.pool = nil
	return err
}

// prepareParams rewrites :name placeholders to positional `?` and
// returns the ordered argument list built from namedArgs, always
// forwarding through the rewritten form — the connector never sends
// both the rewritten SQL and the original named parameters.
func prepareParams(query string, namedArgs map[string]any) (string, []any) {
	var ordered []any
	rewritten := as400NamedParamPattern.ReplaceAllStringFunc(query, func(tok string) string {
		name := tok[1:]
		ordered = append(ordered, namedArgs[name])
		return "?"
	})
	return rewritten, ordered
}

// addRowLimit appends a FETCH FIRST n ROWS ONLY clause when the query
// has no existing row cap and limit > 0.
func addRowLimit(query string, limit int) string {
	return addRowLimitClause(query, limitStyleFetchFirst, limit)
}

func (c *AS400Connector) ExecuteQuery(ctx context.Context, query string, limit int, args ...any) (*QueryResult, error) {
	c.mu.Lock()
	client, cfg, pool := c.client, c.cfg, c.pool
	c.mu.Unlock()
	if client == nil {
		return nil, NewDatabaseError("connector not connected", nil, "connection", cfg.Name)
	}

	query = expandBareTableName(query)
	upper := strings.ToUpper(query)
	if cfg.ReadOnly {
		if m := as400WriteVerbPattern.FindString(upper); m != "" {
			return nil, NewSecurityError("write statement rejected on read-only AS/400 connection",
				"connection", cfg.Name, "verb", m)
		}
	}
	table := extractTableName(query)
	if err := checkTableWhitelist(cfg, table); err != nil {
		return nil, err
	}

	// A single map[string]any argument signals named :placeholder params
	// (the RPC bridge only understands positional `?`); anything else is
	// forwarded as already-positional arguments.
	execQuery, execArgs := query, args
	if len(args) == 1 {
		if named, ok := args[0].(map[string]any); ok {
			execQuery, execArgs = prepareParams(query, named)
		}
	}
	effectiveLimit := limit
	if effectiveLimit <= 0 {
		effectiveLimit = cfg.AS400MaxRows
	}
	execQuery = addRowLimit(execQuery, effectiveLimit)

	queryCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	type outcome struct {
		reply *AS400QueryReply
		err   error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	submitErr := pool.Submit(func() {
		reply, err := client.ExecuteQuery(AS400QueryArgs{Query: execQuery, Args: execArgs})
		done <- outcome{reply: reply, err: err}
	})
	if submitErr != nil {
		return nil, NewDatabaseError("failed to submit AS/400 query to worker pool", submitErr, "connection", cfg.Name)
	}

	select {
	case <-queryCtx.Done():
		return nil, NewDatabaseError("query cancelled", queryCtx.Err(), "connection", cfg.Name)
	case o := <-done:
		dur := time.Since(start)
		c.metrics.record(sanitizeSQLForLogging(query, slowQueryLogTruncate), dur, o.err)
		if o.err != nil {
			return nil, NewDatabaseError(sanitizeErrorMessage(cfg, "AS/400 query execution failed"), o.err,
				"connection", cfg.Name, "table", table)
		}
		cols := make([]ColumnMetadata, 0, len(o.reply.Columns))
		for _, name := range o.reply.Columns {
			cols = append(cols, ColumnMetadata{Name: name})
		}
		return &QueryResult{
			Columns:      cols,
			Rows:         o.reply.Rows,
			RowCount:     o.reply.RowCount,
			Query:        query,
			Duration:     dur,
			ConnectionID: cfg.Name,
			ExecutedAt:   start,
			Truncated:    effectiveLimit > 0 && o.reply.RowCount >= effectiveLimit,
		}, nil
	}
}

func (c *AS400Connector) GetTables(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	client, cfg := c.client, c.cfg
	c.mu.Unlock()
	if client == nil {
		return nil, NewDatabaseError("connector not connected", nil, "connection", cfg.Name)
	}
	tables, err := client.GetTables()
	if err != nil {
		return nil, NewDatabaseError("failed to list AS/400 tables", err, "connection", cfg.Name)
	}
	return tables, nil
}

func (c *AS400Connector) GetTableColumns(ctx context.Context, table string) ([]ColumnMetadata, error) {
	c.mu.Lock()
	client, cfg := c.client, c.cfg
	c.mu.Unlock()
	if client == nil {
		return nil, NewDatabaseError("connector not connected", nil, "connection", cfg.Name)
	}
	if err := checkTableWhitelist(cfg, table); err != nil {
		return nil, err
	}
	reply, err := client.GetTableColumns(AS400TableColumnsArgs{Table: table})
	if err != nil {
		return nil, NewDatabaseError("failed to describe AS/400 table", err, "connection", cfg.Name, "table", table)
	}
	return reply.Columns, nil
}

func (c *AS400Connector) TestConnection(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return fmt.Errorf("qorzendb: AS/400 connector not connected")
	}
	return client.Ping()
}

func (c *AS400Connector) CancelCurrentQuery() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return true
}

func (c *AS400Connector) recentMetrics() *queryMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *AS400Connector) GetConnectionInfo() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"kind":       ConnAS400,
		"name":       c.cfg.Name,
		"bridge":     c.cfg.AS400BridgeAddr,
		"driver_jar": c.cfg.AS400DriverJar,
		"read_only":  c.cfg.ReadOnly,
	}
}

var _ Connector = (*AS400Connector)(nil)
