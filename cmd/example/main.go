// Command example wires up a Manager against a local SQLite file,
// registers a field mapping and a validation rule, and runs one query
// through the whole stack end to end.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sssolid/qorzendb"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mgr := qorzendb.NewManager(qorzendb.ManagerConfig{
		Connections: []qorzendb.ConnectionConfig{
			{Name: "default", Kind: qorzendb.ConnSQLite, Database: "example.db"},
		},
		FieldMapping: qorzendb.FieldMappingConfig{Enabled: true},
		Validation:   qorzendb.ValidationConfig{Enabled: true},
	})

	if err := mgr.Initialize(ctx); err != nil {
		log.Fatalf("initialize: %v", err)
	}
	defer mgr.Shutdown(ctx)

	if err := mgr.CreateTables(ctx, "default"); err != nil {
		log.Fatalf("create management tables: %v", err)
	}
	if err := mgr.Execute(ctx, "default", `CREATE TABLE IF NOT EXISTS widgets (id INTEGER PRIMARY KEY, widget_name TEXT, qty INTEGER)`); err != nil {
		log.Fatalf("create widgets table: %v", err)
	}
	if err := mgr.Execute(ctx, "default", `INSERT INTO widgets (widget_name, qty) VALUES (?, ?)`, "sprocket", 12); err != nil {
		log.Fatalf("seed widgets: %v", err)
	}

	if _, err := mgr.FieldMapper().CreateMapping(ctx, "default", "widgets",
		map[string]string{"widget_name": "name", "qty": "quantity"}, "display names for the widgets table"); err != nil {
		log.Fatalf("create field mapping: %v", err)
	}

	// Validated against "quantity", not "qty": by the time a row reaches
	// ValidateRecord it has already passed through ApplyToResult.
	if _, err := mgr.Validation().CreateRule(ctx, "default", "widgets", "quantity",
		qorzendb.RuleRange, map[string]any{"min": 0, "max": 1000}, true); err != nil {
		log.Fatalf("create validation rule: %v", err)
	}

	result, err := mgr.ExecuteQuery(ctx, "default", "SELECT * FROM widgets", 0, true)
	if err != nil {
		log.Fatalf("query widgets: %v", err)
	}
	for _, row := range result.Rows {
		fmt.Printf("%+v\n", row)

		results, err := mgr.Validation().ValidateRecord(ctx, "default", "widgets", fmt.Sprint(row["id"]), row)
		if err != nil {
			log.Fatalf("validate row: %v", err)
		}
		for _, r := range results {
			fmt.Printf("  validation: field=%s passed=%v message=%q\n", r.FieldName, r.Passed, r.Message)
		}
	}

	fmt.Printf("status: %+v\n", mgr.Status())
}
