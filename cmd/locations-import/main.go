package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"tallyhub/contexts/election-results/tally-engine/adapters/locationcsv"
	postgresadapter "tallyhub/contexts/election-results/tally-engine/adapters/postgres"
	"tallyhub/internal/app/bootstrap"
	"tallyhub/internal/platform/config"
	"tallyhub/internal/platform/db"
)

// Location import entrypoint.
// Data flow:
// 1) Parse the registry CSV (id,level,parent_id,name,registered_voters).
// 2) Ensure the schema exists.
// 3) Upsert every row in one transaction.
func main() {
	path := flag.String("file", "", "path to the locations CSV")
	flag.Parse()
	if *path == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger := bootstrap.NewLogger(cfg.LogLevel).With("service", cfg.ServiceName, "process", "locations-import")

	file, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open %s: %v", *path, err)
	}
	locations, err := locationcsv.Read(file)
	_ = file.Close()
	if err != nil {
		log.Fatalf("parse %s: %v", *path, err)
	}

	pg, err := db.Connect(cfg.PostgresDSN, logger)
	if err != nil {
		log.Fatalf("connect postgres failed: %v", err)
	}
	defer func() {
		_ = pg.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := postgresadapter.EnsureSchema(ctx, pg.DB); err != nil {
		log.Fatalf("ensure schema failed: %v", err)
	}
	count, err := postgresadapter.NewLocationRegistry(pg.DB, logger).ImportLocations(ctx, locations)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}
	logger.Info("locations imported",
		"event", "tally_locations_imported",
		"module", "cmd/locations-import",
		"layer", "platform",
		"file", *path,
		"count", count,
	)
}
