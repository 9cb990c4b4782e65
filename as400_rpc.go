package qorzendb

import (
	"net/rpc"
	"time"
)

// AS/400 support is implemented as an out-of-process RPC bridge rather
// than an embedded JVM: Go cannot host the JT400 JDBC driver in-process,
// so qorzendb talks to a helper process (cmd/as400bridge) over net/rpc.
// A real deployment's bridge embeds JT400 via JNI; qorzendb ships the
// wire protocol and a reference in-memory stub server for tests.

// AS400ConnectArgs is sent once per Connect call.
type AS400ConnectArgs struct {
	Host      string
	Port      int
	Database  string
	Username  string
	Password  string
	DriverJar string
}

// AS400QueryArgs carries one query dispatch.
type AS400QueryArgs struct {
	Query string
	Args  []any
}

// AS400QueryReply is the bridge's response to an AS400QueryArgs call.
type AS400QueryReply struct {
	Columns  []string
	Rows     []map[string]any
	RowCount int
}

// AS400TableColumnsArgs requests column metadata for one table.
type AS400TableColumnsArgs struct {
	Table string
}

// AS400TableColumnsReply mirrors ColumnMetadata over the wire.
type AS400TableColumnsReply struct {
	Columns []ColumnMetadata
}

// as400RPCClient wraps *rpc.Client with the bridge's method names.
type as400RPCClient struct {
	client *rpc.Client
}

func dialAS400Bridge(network, addr string, timeout time.Duration) (*as400RPCClient, error) {
	conn, err := rpc.DialHTTP(network, addr)
	if err != nil {
		return nil, err
	}
	return &as400RPCClient{client: conn}, nil
}

func (c *as400RPCClient) Connect(args AS400ConnectArgs) error {
	var ok bool
	return c.client.Call("AS400Bridge.Connect", args, &ok)
}

func (c *as400RPCClient) Disconnect() error {
	var ok bool
	return c.client.Call("AS400Bridge.Disconnect", struct{}{}, &ok)
}

func (c *as400RPCClient) ExecuteQuery(args AS400QueryArgs) (*AS400QueryReply, error) {
	var reply AS400QueryReply
	if err := c.client.Call("AS400Bridge.ExecuteQuery", args, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *as400RPCClient) GetTables() ([]string, error) {
	var reply []string
	if err := c.client.Call("AS400Bridge.GetTables", struct{}{}, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *as400RPCClient) GetTableColumns(args AS400TableColumnsArgs) (*AS400TableColumnsReply, error) {
	var reply AS400TableColumnsReply
	if err := c.client.Call("AS400Bridge.GetTableColumns", args, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *as400RPCClient) Ping() error {
	var ok bool
	return c.client.Call("AS400Bridge.Ping", struct{}{}, &ok)
}

func (c *as400RPCClient) Close() error {
	return c.client.Close()
}
