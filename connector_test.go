package qorzendb

import "testing"

func TestCheckReadOnly(t *testing.T) {
	cfg := ConnectionConfig{Name: "reporting", ReadOnly: true}
	if err := checkReadOnly(cfg, "SELECT * FROM widgets"); err != nil {
		t.Errorf("SELECT should be allowed on a read-only connection, got %v", err)
	}
	if err := checkReadOnly(cfg, "DELETE FROM widgets"); err == nil {
		t.Error("DELETE should be rejected on a read-only connection")
	}
	if err := checkReadOnly(cfg, "delete from widgets"); err == nil {
		t.Error("write-verb matching should be case-insensitive")
	}

	cfg.ReadOnly = false
	if err := checkReadOnly(cfg, "DELETE FROM widgets"); err != nil {
		t.Errorf("writes should be allowed when ReadOnly is false, got %v", err)
	}
}

func TestCheckTableWhitelist(t *testing.T) {
	cfg := ConnectionConfig{Name: "reporting", TableWhitelist: []string{"widgets", "Orders"}}
	if err := checkTableWhitelist(cfg, "widgets"); err != nil {
		t.Errorf("whitelisted table should be allowed, got %v", err)
	}
	if err := checkTableWhitelist(cfg, "orders"); err != nil {
		t.Errorf("whitelist matching should be case-insensitive, got %v", err)
	}
	if err := checkTableWhitelist(cfg, "secrets"); err == nil {
		t.Error("non-whitelisted table should be rejected")
	}

	cfg.TableWhitelist = nil
	if err := checkTableWhitelist(cfg, "anything"); err != nil {
		t.Errorf("an empty whitelist should allow any table, got %v", err)
	}
}

func TestExtractTableName(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM widgets":               "widgets",
		"select id from dbo.Orders where x=1": "Orders",
		"SELECT 1":                            "",
	}
	for query, want := range cases {
		if got := extractTableName(query); got != want {
			t.Errorf("extractTableName(%q) = %q, want %q", query, got, want)
		}
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	cfg := ConnectionConfig{Username: "svc_user", Password: "hunter2"}
	msg := "auth failed for svc_user with password hunter2"
	got := sanitizeErrorMessage(cfg, msg)
	if got == msg {
		t.Fatal("expected the message to be redacted")
	}
	if contains(got, "hunter2") || contains(got, "svc_user") {
		t.Errorf("sanitized message still leaks credentials: %q", got)
	}
}

func TestSanitizeSQLForLogging_Truncates(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	got := sanitizeSQLForLogging(string(long), 1000)
	if len(got) <= 1000 {
		t.Error("expected truncated output to include the ellipsis marker and exceed maxLen slightly")
	}
}

func TestExpandBareTableName(t *testing.T) {
	if got := expandBareTableName("widgets"); got != "SELECT * FROM widgets" {
		t.Errorf("expandBareTableName(widgets) = %q, want SELECT * FROM widgets", got)
	}
	if got := expandBareTableName("  widgets  "); got != "SELECT * FROM widgets" {
		t.Errorf("expandBareTableName should trim surrounding whitespace, got %q", got)
	}
	if got := expandBareTableName("SELECT * FROM widgets"); got != "SELECT * FROM widgets" {
		t.Errorf("expandBareTableName should leave a full query untouched, got %q", got)
	}
}

func TestAddRowLimitClause(t *testing.T) {
	if got := addRowLimitClause("SELECT * FROM widgets", limitStyleLIMIT, 10); got != "SELECT * FROM widgets LIMIT 10" {
		t.Errorf("unexpected LIMIT clause: %q", got)
	}
	if got := addRowLimitClause("SELECT * FROM widgets", limitStyleTOP, 10); got != "SELECT TOP 10 * FROM widgets" {
		t.Errorf("unexpected TOP clause: %q", got)
	}
	if got := addRowLimitClause("SELECT * FROM widgets", limitStyleFetchFirst, 10); got != "SELECT * FROM widgets FETCH FIRST 10 ROWS ONLY" {
		t.Errorf("unexpected FETCH FIRST clause: %q", got)
	}
	if got := addRowLimitClause("SELECT * FROM widgets", limitStyleLIMIT, 0); got != "SELECT * FROM widgets" {
		t.Errorf("limit <= 0 should not modify the query, got %q", got)
	}
	if got := addRowLimitClause("SELECT * FROM widgets LIMIT 5", limitStyleLIMIT, 10); got != "SELECT * FROM widgets LIMIT 5" {
		t.Errorf("an existing LIMIT clause should not be double-applied, got %q", got)
	}
}

func TestLimitStyleFor(t *testing.T) {
	cases := map[ConnectionType]limitStyle{
		ConnMSSQL:      limitStyleTOP,
		ConnOracle:     limitStyleFetchFirst,
		ConnAS400:      limitStyleFetchFirst,
		ConnPostgreSQL: limitStyleLIMIT,
		ConnSQLite:     limitStyleLIMIT,
	}
	for kind, want := range cases {
		if got := limitStyleFor(kind); got != want {
			t.Errorf("limitStyleFor(%q) = %v, want %v", kind, got, want)
		}
	}
}

func TestDefaultPortFor(t *testing.T) {
	if defaultPortFor(ConnPostgreSQL) != 5432 {
		t.Error("unexpected default port for postgresql")
	}
	if defaultPortFor(ConnAS400) != 8471 {
		t.Error("unexpected default port for as400")
	}
	if defaultPortFor(ConnODBC) != 0 {
		t.Error("ODBC has no conventional TCP port")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
