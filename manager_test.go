package qorzendb

import (
	"context"
	"testing"
)

// fakeConnector is a minimal in-memory Connector used to exercise
// Manager without a real database driver.
type fakeConnector struct {
	kind      ConnectionType
	connected bool
	rows      []map[string]any
}

func (f *fakeConnector) Kind() ConnectionType { return f.kind }
func (f *fakeConnector) Connect(ctx context.Context, cfg ConnectionConfig) error {
	f.connected = true
	return nil
}
func (f *fakeConnector) Disconnect(ctx context.Context) error {
	f.connected = false
	return nil
}
func (f *fakeConnector) ExecuteQuery(ctx context.Context, query string, limit int, args ...any) (*QueryResult, error) {
	return &QueryResult{Rows: f.rows, RowCount: len(f.rows), Query: query}, nil
}
func (f *fakeConnector) GetTables(ctx context.Context) ([]string, error) { return []string{"widgets"}, nil }
func (f *fakeConnector) GetTableColumns(ctx context.Context, table string) ([]ColumnMetadata, error) {
	return nil, nil
}
func (f *fakeConnector) TestConnection(ctx context.Context) error { return nil }
func (f *fakeConnector) CancelCurrentQuery() bool                 { return false }
func (f *fakeConnector) GetConnectionInfo() map[string]any        { return map[string]any{"kind": f.kind} }

var _ Connector = (*fakeConnector)(nil)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{})
	m.RegisterConnectorType("fake", func() Connector {
		return &fakeConnector{kind: "fake", rows: []map[string]any{{"widget_name": "sprocket", "qty": 5}}}
	})
	if err := m.RegisterConnection(context.Background(), ConnectionConfig{Name: "default", Kind: "fake"}); err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	return m
}

func TestManager_RegisterAndHasConnection(t *testing.T) {
	m := newTestManager(t)
	if !m.HasConnection("default") {
		t.Error("expected the default connection to be registered")
	}
	if m.HasConnection("missing") {
		t.Error("expected an unregistered connection to report false")
	}
}

func TestManager_RegisterConnection_EmptyNameRejected(t *testing.T) {
	m := NewManager(ManagerConfig{})
	if err := m.RegisterConnection(context.Background(), ConnectionConfig{Kind: "fake"}); err == nil {
		t.Error("expected an error registering a connection with an empty name")
	}
}

func TestManager_ExecuteQuery_WithoutFieldMapper(t *testing.T) {
	m := newTestManager(t)
	result, err := m.ExecuteQuery(context.Background(), "default", "SELECT * FROM widgets", 0, false)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}
	if result.RowCount != 1 {
		t.Errorf("expected 1 row, got %d", result.RowCount)
	}
	if result.Rows[0]["widget_name"] != "sprocket" {
		t.Error("expected the row to pass through unmapped when no field mapper is configured")
	}
}

func TestManager_ExecuteQuery_AppliesFieldMapping(t *testing.T) {
	m := newTestManager(t)
	m.mapper = &FieldMapper{byTable: map[string]*FieldMapping{
		mappingCacheKey("default", "widgets"): {FieldMap: map[string]string{"widget_name": "name"}},
	}}

	result, err := m.ExecuteQuery(context.Background(), "default", "SELECT * FROM widgets", 0, true)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}
	if result.Rows[0]["name"] != "sprocket" {
		t.Errorf("expected field mapping to rename widget_name to name, got %v", result.Rows[0])
	}
}

func TestManager_ExecuteQuery_SkipsMappingWhenNotRequested(t *testing.T) {
	m := newTestManager(t)
	m.mapper = &FieldMapper{byTable: map[string]*FieldMapping{
		mappingCacheKey("default", "widgets"): {FieldMap: map[string]string{"widget_name": "name"}},
	}}

	result, err := m.ExecuteQuery(context.Background(), "default", "SELECT * FROM widgets", 0, false)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}
	if result.Rows[0]["widget_name"] != "sprocket" {
		t.Error("expected applyMapping=false to leave rows unmapped even with a field mapper configured")
	}
}

func TestManager_UnregisterConnection(t *testing.T) {
	m := newTestManager(t)
	if err := m.RegisterConnection(context.Background(), ConnectionConfig{Name: "reporting", Kind: "fake"}); err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if err := m.UnregisterConnection(context.Background(), "reporting"); err != nil {
		t.Fatalf("UnregisterConnection failed: %v", err)
	}
	if m.HasConnection("reporting") {
		t.Error("expected the connection to be removed")
	}
	if err := m.UnregisterConnection(context.Background(), "reporting"); err == nil {
		t.Error("expected an error unregistering an already-removed connection")
	}
}

func TestManager_UnregisterConnection_DefaultIsReserved(t *testing.T) {
	m := newTestManager(t)
	if err := m.UnregisterConnection(context.Background(), "default"); err == nil {
		t.Error("expected an error unregistering the reserved default connection")
	}
	if !m.HasConnection("default") {
		t.Error("expected the default connection to remain registered")
	}
}

func TestManager_Status(t *testing.T) {
	m := newTestManager(t)
	st := m.Status()
	cs, ok := st.Connections["default"]
	if !ok {
		t.Fatal("expected a status entry for the default connection")
	}
	if !cs.Connected {
		t.Error("expected the default connection to report connected")
	}
}

func TestManager_GetTables(t *testing.T) {
	m := newTestManager(t)
	tables, err := m.GetTables(context.Background(), "default")
	if err != nil {
		t.Fatalf("GetTables failed: %v", err)
	}
	if len(tables) != 1 || tables[0] != "widgets" {
		t.Errorf("unexpected tables: %v", tables)
	}
}
