package qorzendb

import "testing"

func TestStandardizeFieldName(t *testing.T) {
	cases := map[string]string{
		"Customer Name":  "customer_name",
		"customerName":   "customer_name",
		"  Order #  ID ": "order_id",
		"already_snake":  "already_snake",
		"UPPER CASE":     "upper_case",
	}
	for in, want := range cases {
		if got := StandardizeFieldName(in); got != want {
			t.Errorf("StandardizeFieldName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestApplyToQuery_SelectStar(t *testing.T) {
	fm := &FieldMapper{byTable: map[string]*FieldMapping{
		mappingCacheKey("default", "widgets"): {
			FieldMap: map[string]string{"widget_name": "name"},
		},
	}}
	got := fm.ApplyToQuery("default", "widgets", "SELECT * FROM widgets")
	want := "SELECT widget_name AS name FROM widgets"
	if got != want {
		t.Errorf("ApplyToQuery() = %q, want %q", got, want)
	}
}

func TestApplyToQuery_NoMapping(t *testing.T) {
	fm := &FieldMapper{byTable: map[string]*FieldMapping{}}
	query := "SELECT id FROM widgets"
	if got := fm.ApplyToQuery("default", "widgets", query); got != query {
		t.Errorf("ApplyToQuery() with no mapping should be a no-op, got %q", got)
	}
}

func TestApplyToResult_RenamesRowsAndRecordsFieldMap(t *testing.T) {
	fm := &FieldMapper{byTable: map[string]*FieldMapping{
		mappingCacheKey("default", "widgets"): {
			FieldMap: map[string]string{"widget_name": "name", "qty": "quantity"},
		},
	}}
	result := &QueryResult{Rows: []map[string]any{
		{"widget_name": "sprocket", "qty": 5, "id": 1},
	}}

	fm.ApplyToResult(nil, "default", "widgets", result)

	row := result.Rows[0]
	if row["name"] != "sprocket" {
		t.Errorf("expected row[name] = sprocket, got %v", row["name"])
	}
	if row["quantity"] != 5 {
		t.Errorf("expected row[quantity] = 5, got %v", row["quantity"])
	}
	if row["id"] != 1 {
		t.Errorf("unmapped column id should be preserved, got %v", row["id"])
	}
	if len(result.MappedFields) != 2 {
		t.Errorf("expected MappedFields to be recorded, got %v", result.MappedFields)
	}
}

func TestApplyToResult_NoMappingIsNoOp(t *testing.T) {
	fm := &FieldMapper{byTable: map[string]*FieldMapping{}}
	result := &QueryResult{Rows: []map[string]any{{"id": 1}}}
	fm.ApplyToResult(nil, "default", "widgets", result)
	if result.MappedFields != nil {
		t.Error("expected MappedFields to remain nil when no mapping is registered")
	}
}

func TestGetAllMappings_FiltersByConnection(t *testing.T) {
	fm := &FieldMapper{byID: map[string]*FieldMapping{
		"1": {ID: "1", ConnectionName: "a"},
		"2": {ID: "2", ConnectionName: "b"},
	}}
	if got := len(fm.GetAllMappings("a")); got != 1 {
		t.Errorf("GetAllMappings(a) returned %d mappings, want 1", got)
	}
	if got := len(fm.GetAllMappings("")); got != 2 {
		t.Errorf("GetAllMappings(\"\") returned %d mappings, want 2", got)
	}
}
