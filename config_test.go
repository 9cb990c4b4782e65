package qorzendb

import "testing"

func TestConnectionConfigFromMap(t *testing.T) {
	raw := map[string]any{
		"name": "reporting", "kind": "postgresql", "host": "db.internal",
		"port": 5432, "database": "reports", "username": "svc", "password": "secret",
		"read_only": true,
	}
	cc, err := connectionConfigFromMap(raw)
	if err != nil {
		t.Fatalf("connectionConfigFromMap failed: %v", err)
	}
	if cc.Name != "reporting" || cc.Kind != ConnPostgreSQL || cc.Host != "db.internal" || cc.Port != 5432 {
		t.Errorf("unexpected ConnectionConfig: %+v", cc)
	}
	if !cc.ReadOnly {
		t.Error("expected ReadOnly to be true")
	}
	if cc.MaxOpenConns == 0 {
		t.Error("expected pool defaults to be populated")
	}
}

func TestConnectionConfigFromMap_MissingName(t *testing.T) {
	if _, err := connectionConfigFromMap(map[string]any{"kind": "postgresql"}); err == nil {
		t.Error("expected an error for a connection entry missing a name")
	}
}

func TestConnectionConfigFromMap_MissingKind(t *testing.T) {
	if _, err := connectionConfigFromMap(map[string]any{"name": "reporting"}); err == nil {
		t.Error("expected an error for a connection entry missing a kind")
	}
}

func TestLoadDotEnv_MissingFileIsSilent(t *testing.T) {
	LoadDotEnv("/nonexistent/path/to/.env")
}
