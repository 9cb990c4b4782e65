package qorzendb

import (
	"strings"
	"testing"
)

func TestManagementTableDDL_Count(t *testing.T) {
	if len(managementTableDDL) != 7 {
		t.Errorf("expected 7 management table statements, got %d", len(managementTableDDL))
	}
}

func TestManagementTableDDL_TableNames(t *testing.T) {
	want := []string{
		"db_field_mappings", "db_field_mapping_entries",
		"db_history_schedules", "db_history_entries", "db_history_data",
		"db_validation_rules", "db_validation_results",
	}
	for i, name := range want {
		if !strings.Contains(managementTableDDL[i], name) {
			t.Errorf("statement %d = %q, expected to contain %q", i, managementTableDDL[i], name)
		}
	}
}

func TestManagementTableDDL_AllCreateIfNotExists(t *testing.T) {
	for i, stmt := range managementTableDDL {
		if !strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS") {
			t.Errorf("statement %d is not a CREATE TABLE IF NOT EXISTS: %q", i, stmt)
		}
	}
}
