// Command seed populates a local SQLite widgets table with generated
// rows, the same role the teacher's examples/seed module plays for
// its users table.
package main

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/jaswdr/faker"

	"github.com/sssolid/qorzendb"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mgr := qorzendb.NewManager(qorzendb.ManagerConfig{
		Connections: []qorzendb.ConnectionConfig{
			{Name: "default", Kind: qorzendb.ConnSQLite, Database: "seed.db"},
		},
	})
	if err := mgr.Initialize(ctx); err != nil {
		log.Fatalf("initialize: %v", err)
	}
	defer mgr.Shutdown(ctx)

	if err := mgr.Execute(ctx, "default",
		`CREATE TABLE IF NOT EXISTS widgets (id INTEGER PRIMARY KEY, widget_name TEXT, qty INTEGER)`); err != nil {
		log.Fatalf("create widgets table: %v", err)
	}

	f := faker.New()
	const rowCount = 50
	for i := 0; i < rowCount; i++ {
		name := f.Company().Name()
		qty := rand.Intn(500)
		if err := mgr.Execute(ctx, "default",
			`INSERT INTO widgets (widget_name, qty) VALUES (?, ?)`, name, qty); err != nil {
			log.Fatalf("seed row %d: %v", i, err)
		}
	}
	log.Printf("seeded %d widgets", rowCount)
}
