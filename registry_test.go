package qorzendb

import "testing"

func TestNewRegistry_RegistersBuiltinConnectors(t *testing.T) {
	r := newRegistry()
	for _, kind := range []ConnectionType{ConnPostgreSQL, ConnMySQL, ConnSQLite, ConnMSSQL, ConnOracle, ConnODBC, ConnAS400} {
		if _, err := r.newConnector(kind); err != nil {
			t.Errorf("expected a built-in factory for %q, got error %v", kind, err)
		}
	}
	if _, err := r.newConnector("bogus"); err == nil {
		t.Error("expected an error for an unregistered connection kind")
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := newRegistry()
	conn := &Connection{Name: "reporting", connected: true}

	if err := r.register(conn); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !r.has("reporting") {
		t.Error("expected reporting to be registered")
	}
	got, err := r.get("reporting")
	if err != nil || got != conn {
		t.Errorf("get(reporting) = %v, %v, want %v, nil", got, err, conn)
	}

	if _, err := r.get("missing"); err == nil {
		t.Error("expected an error looking up an unregistered connection")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := newRegistry()
	conn := &Connection{Name: "reporting"}
	_ = r.register(conn)

	removed := r.unregister("reporting")
	if removed != conn {
		t.Error("unregister should return the removed connection")
	}
	if r.has("reporting") {
		t.Error("connection should no longer be registered")
	}
	if r.unregister("reporting") != nil {
		t.Error("unregistering an already-removed connection should return nil")
	}
}

func TestRegistry_NamesAndAll(t *testing.T) {
	r := newRegistry()
	_ = r.register(&Connection{Name: "a"})
	_ = r.register(&Connection{Name: "b"})

	if got := len(r.names()); got != 2 {
		t.Errorf("expected 2 names, got %d", got)
	}
	if got := len(r.all()); got != 2 {
		t.Errorf("expected 2 connections, got %d", got)
	}
}

func TestRegistry_RegisterEmptyNameFails(t *testing.T) {
	r := newRegistry()
	if err := r.register(&Connection{Name: ""}); err == nil {
		t.Error("expected an error registering a connection with an empty name")
	}
}

func TestConnection_ConfigAndConnected(t *testing.T) {
	cfg := ConnectionConfig{Name: "reporting", Kind: ConnSQLite}
	conn := &Connection{Name: "reporting", cfg: cfg, connected: true}

	if conn.Config().Kind != ConnSQLite {
		t.Error("Config() should return the stored ConnectionConfig")
	}
	if !conn.Connected() {
		t.Error("Connected() should report true")
	}
}
