package main

import (
	"context"
	"embed"
	"log"

	"github.com/ghuser/campusreserve/pkg/config"
	"github.com/ghuser/campusreserve/pkg/migrator"
)

//go:embed *.sql
var MigrationsFS embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	applied, err := migrator.RunMigrations(context.Background(), cfg.DatabaseURL, MigrationsFS)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	for _, name := range applied {
		log.Printf("applied %s", name)
	}
}
