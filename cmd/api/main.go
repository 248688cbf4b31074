package main

import (
	"context"
	"log"

	"github.com/appforge-dev/appforge-backend/config"
	"github.com/appforge-dev/appforge-backend/internal/bootstrap"
	"github.com/appforge-dev/appforge-backend/internal/maintenance"
	"github.com/appforge-dev/appforge-backend/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx := context.Background()
	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{DSN: cfg.Database.DSN()})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}

	sched := maintenance.NewScheduler(pool, cfg.App.PurgeAfterDays)
	sched.Start()
	defer sched.Stop()

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: "appforge-backend",
		Version:     cfg.App.Version,
		DB:          pool,
	})

	log.Printf("listening on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
