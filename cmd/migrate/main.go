package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/config"
	"casedesk.org/internal/migrate"
	"casedesk.org/internal/obs"
	"casedesk.org/internal/store/pg"
)

func main() {
	var (
		cfgPath = flag.String("config", config.Path(), "Path to YAML config")
		dsn     = flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
		dir     = flag.String("dir", "", "Read migrations/ and seeds/ from this directory instead of the embedded set")
		timeout = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-config file] [-dsn dsn] [up|down|seed|status]")
		os.Exit(2)
	}

	log, err := obs.NewLogger("info", "console", "casedesk-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *dsn == "" {
		*dsn = os.Getenv("CASEDESK_PG_DSN")
	}
	if *dsn == "" && *cfgPath != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatal("load config", zap.Error(err))
		}
		*dsn = cfg.Database.DSN
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide -dsn, CASEDESK_PG_DSN or database.dsn")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer store.Close()

	opts := []migrate.Option{migrate.WithLogger(log)}
	if *dir != "" {
		opts = append(opts, migrate.WithFS(os.DirFS(*dir), "migrations", "seeds"))
	}
	mgr := migrate.NewManager(store.DB(), opts...)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		printAll(applied)
	case "seed":
		var applied []string
		applied, err = mgr.Seed(ctx)
		printAll(applied)
	case "down":
		var reverted string
		reverted, err = mgr.Down(ctx)
		if err == nil {
			fmt.Println(reverted)
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		printAll(history)
	default:
		log.Fatal("unknown command", zap.String("command", cmd))
	}
	if errors.Is(err, migrate.ErrNothingApplied) {
		log.Info("nothing to do", zap.String("command", cmd))
		return
	}
	if err != nil {
		log.Fatal("migrate failed", zap.String("command", cmd), zap.Error(err))
	}
}

func printAll(items []string) {
	for _, item := range items {
		fmt.Println(item)
	}
}
