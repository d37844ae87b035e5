package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"durga.org/internal/config"
	"durga.org/internal/migrate"
	"durga.org/internal/obs"
	"durga.org/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	var (
		dsn       = flag.String("dsn", cfg.Database.DSN, "PostgreSQL DSN (default from DURGA_DATABASE_DSN)")
		withSeeds = flag.Bool("seeds", cfg.Migrations.Seeds, "apply seed files after up")
	)
	flag.Parse()

	obs.SetLevel(cfg.Log.Level)
	log := obs.Logger().Named("migrate")
	defer func() { _ = log.Sync() }()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DURGA_DATABASE_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrations.FS, migrations.SQLDir, migrations.SeedsDir, migrate.WithLogger(log))

	var applied []string
	switch cmd := flag.Arg(0); cmd {
	case "up":
		applied, err = mgr.Up(ctx)
		if err == nil && *withSeeds {
			var seeded []string
			seeded, err = mgr.Seed(ctx)
			applied = append(applied, seeded...)
		}
	case "down":
		var name string
		if name, err = mgr.Down(ctx); err == nil {
			applied = []string{name}
		}
	case "seed":
		applied, err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		log.Fatal("unknown command", zap.String("command", cmd))
	}
	if err != nil {
		log.Fatal("migrate failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
	log.Info("migrate done", zap.String("command", flag.Arg(0)), zap.Strings("files", applied))
}
