package qorzendb

import (
	"fmt"
	"sync"
)

// ConnectorFactory builds a fresh, unconnected Connector instance for a
// given ConnectionType. Manager.RegisterConnectorType lets callers add
// support for kinds beyond the three built in.
type ConnectorFactory func() Connector

// Connection is a named, registered database connection: its
// configuration plus the live Connector instance backing it. It also
// tracks its own two live-session sets (sync and async), so an
// unregister or shutdown can force-close whatever is still in flight.
type Connection struct {
	mu        sync.RWMutex
	Name      string
	cfg       ConnectionConfig
	connector Connector
	connected bool

	sessionMu     sync.Mutex
	syncSessions  map[*Session]struct{}
	asyncSessions map[*Session]struct{}
}

// trackSession adds s to this Connection's live sync or async session
// set, called when runInSession begins.
func (c *Connection) trackSession(async bool, s *Session) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	set := &c.syncSessions
	if async {
		set = &c.asyncSessions
	}
	if *set == nil {
		*set = make(map[*Session]struct{})
	}
	(*set)[s] = struct{}{}
}

// untrackSession removes s from its live-session set, called when
// runInSession returns (commit, rollback, or propagated panic).
func (c *Connection) untrackSession(async bool, s *Session) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if async {
		delete(c.asyncSessions, s)
	} else {
		delete(c.syncSessions, s)
	}
}

// hasSession reports whether s is still tracked as live, in the given
// set.
func (c *Connection) hasSession(async bool, s *Session) bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	set := c.syncSessions
	if async {
		set = c.asyncSessions
	}
	_, ok := set[s]
	return ok
}

// LiveSessionCounts reports how many sync and async sessions are
// currently open against this connection.
func (c *Connection) LiveSessionCounts() (sync, async int) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return len(c.syncSessions), len(c.asyncSessions)
}

// forceCloseSessions rolls back every still-open session of both kinds
// and clears both sets, called when a connection is unregistered or the
// Manager shuts down.
func (c *Connection) forceCloseSessions() {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	for s := range c.syncSessions {
		_ = s.rollback()
	}
	for s := range c.asyncSessions {
		_ = s.rollback()
	}
	c.syncSessions = nil
	c.asyncSessions = nil
}

// Config returns a copy of this connection's ConnectionConfig.
func (c *Connection) Config() ConnectionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Connected reports whether Connect has succeeded and Disconnect has
// not since been called.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// registry is the name -> *Connection map at the heart of the Manager,
// the Go analogue of DatabaseManager._connections.
type registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	factories   map[ConnectionType]ConnectorFactory
}

func newRegistry() *registry {
	r := &registry{
		connections: make(map[string]*Connection),
		factories:   make(map[ConnectionType]ConnectorFactory),
	}
	r.registerBuiltinConnectors()
	return r
}

// registerBuiltinConnectors wires up the three connector kinds qorzendb
// ships: generic SQL (covering postgresql/mysql/sqlite/mssql/oracle),
// ODBC, and AS/400.
func (r *registry) registerBuiltinConnectors() {
	generic := func() Connector { return NewGenericConnector() }
	r.factories[ConnPostgreSQL] = generic
	r.factories[ConnMySQL] = generic
	r.factories[ConnSQLite] = generic
	r.factories[ConnMSSQL] = generic
	r.factories[ConnOracle] = generic
	r.factories[ConnODBC] = func() Connector { return NewODBCConnector() }
	r.factories[ConnAS400] = func() Connector { return NewAS400Connector() }
}

// RegisterConnectorType adds or overrides the factory used for kind.
func (r *registry) RegisterConnectorType(kind ConnectionType, factory ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

func (r *registry) newConnector(kind ConnectionType) (Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, NewConfigurationError("no connector registered for kind", "kind", kind)
	}
	return factory(), nil
}

// register adds conn under its Name, replacing any prior entry with the
// same name. Callers are expected to have already connected it.
func (r *registry) register(conn *Connection) error {
	if conn.Name == "" {
		return NewConfigurationError("connection name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.Name] = conn
	return nil
}

// unregister removes name from the registry, returning the removed
// *Connection (or nil if it was not present).
func (r *registry) unregister(name string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := r.connections[name]
	delete(r.connections, name)
	return conn
}

func (r *registry) has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connections[name]
	return ok
}

func (r *registry) get(name string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[name]
	if !ok {
		return nil, fmt.Errorf("qorzendb: unknown connection %q", name)
	}
	return conn, nil
}

func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connections))
	for name := range r.connections {
		out = append(out, name)
	}
	return out
}

func (r *registry) all() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		out = append(out, conn)
	}
	return out
}
