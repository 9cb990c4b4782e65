// Command as400bridge is a reference implementation of the out-of-process
// helper qorzendb's AS400Connector talks to over net/rpc. A production
// bridge replaces the in-memory stub below with a JNI call into the JT400
// JDBC driver; this one exists so the protocol and the connector can be
// exercised without a real AS/400 host.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/rpc"
	"sync"
)

// AS400Bridge is the RPC receiver registered with net/rpc. Method names
// and argument/reply types must match qorzendb's as400RPCClient.
type AS400Bridge struct {
	mu        sync.Mutex
	connected bool
	tables    map[string][]map[string]any
}

type connectArgs struct {
	Host, Database, Username, Password, DriverJar string
	Port                                           int
}

func (b *AS400Bridge) Connect(args connectArgs, ok *bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	*ok = true
	log.Printf("as400bridge: connected to %s:%d/%s (driver jar %s)", args.Host, args.Port, args.Database, args.DriverJar)
	return nil
}

func (b *AS400Bridge) Disconnect(_ struct{}, ok *bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	*ok = true
	return nil
}

func (b *AS400Bridge) Ping(_ struct{}, ok *bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return fmt.Errorf("as400bridge: not connected")
	}
	*ok = true
	return nil
}

type queryArgs struct {
	Query string
	Args  []any
}

type queryReply struct {
	Columns  []string
	Rows     []map[string]any
	RowCount int
}

func (b *AS400Bridge) ExecuteQuery(args queryArgs, reply *queryReply) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return fmt.Errorf("as400bridge: not connected")
	}
	// The reference stub has no real JDBC driver behind it: it always
	// returns an empty result set. Real bridges replace this with a
	// JDBC statement execution.
	reply.Columns = nil
	reply.Rows = nil
	reply.RowCount = 0
	return nil
}

func (b *AS400Bridge) GetTables(_ struct{}, reply *[]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tables := make([]string, 0, len(b.tables))
	for name := range b.tables {
		tables = append(tables, name)
	}
	*reply = tables
	return nil
}

type tableColumnsArgs struct{ Table string }

type columnMetadata struct {
	Name       string
	DataType   string
	Nullable   bool
	PrimaryKey bool
}

type tableColumnsReply struct{ Columns []columnMetadata }

func (b *AS400Bridge) GetTableColumns(args tableColumnsArgs, reply *tableColumnsReply) error {
	reply.Columns = nil
	return nil
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8471", "address to listen on for the AS/400 bridge RPC service")
	flag.Parse()

	bridge := &AS400Bridge{tables: map[string][]map[string]any{}}
	if err := rpc.Register(bridge); err != nil {
		log.Fatalf("as400bridge: register: %v", err)
	}
	rpc.HandleHTTP()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("as400bridge: listen on %s: %v", *addr, err)
	}
	log.Printf("as400bridge: listening on %s", *addr)
	log.Fatal(http.Serve(listener, nil))
}
