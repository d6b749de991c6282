package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
	"github.com/angelmondragon/tillpoint-terminal/pkg/migrate"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|status")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite3", cfg.Local.Path)
	if err != nil {
		logg.Error(ctx, "failed to open local store", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *cmd {
	case "up":
		err = migrate.Up(ctx, db)
	case "status":
		err = migrate.Status(ctx, db)
	default:
		logg.Error(ctx, "unknown migration command "+*cmd, nil)
		os.Exit(2)
	}
	if err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "cmd", *cmd), "migration command completed")
}
