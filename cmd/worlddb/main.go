// Package main implements the worlddb service binary: the world dataset
// over HTTP and, optionally, gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/arkilian/worlddb/internal/app"
	"github.com/arkilian/worlddb/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		driver      string
		addresses   string
		httpAddr    string
		grpcAddr    string
		repoKind    string
		defaultLim  int
		withCache   bool
		demoCity    int64
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&driver, "driver", "", "Engine driver: sqlite3, sqlite, pgx, mysql")
	flag.StringVar(&addresses, "addresses", "", "Comma-separated engine addresses, tried in order")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (enables gRPC)")
	flag.StringVar(&repoKind, "repository", "", "Repository implementation: native, gorm")
	flag.IntVar(&defaultLim, "default-limit", 0, "Ranking size when a request gives no limit")
	flag.BoolVar(&withCache, "cache", false, "Enable the redis result cache")
	flag.Int64Var(&demoCity, "demo-city", 34, "City id read by the startup access demo (0 disables it)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "worlddb - the world database service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: worlddb [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  WORLDDB_ENGINE_DRIVER      Engine driver\n")
		fmt.Fprintf(os.Stderr, "  WORLDDB_ENGINE_ADDRESSES   Comma-separated engine addresses\n")
		fmt.Fprintf(os.Stderr, "  WORLDDB_HTTP_ADDR          HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  WORLDDB_CACHE_ENABLED      Enable the redis result cache\n")
		fmt.Fprintf(os.Stderr, "  Variables may also be set in ./.env\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("worlddb version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags have the highest priority.
	if driver != "" {
		cfg.Engine.Driver = driver
	}
	if addresses != "" {
		cfg.Engine.Addresses = strings.Split(addresses, ",")
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
		cfg.GRPC.Enabled = true
	}
	if repoKind != "" {
		cfg.Repository.Kind = repoKind
	}
	if defaultLim != 0 {
		cfg.API.DefaultLimit = defaultLim
	}
	if withCache {
		cfg.Cache.Enabled = true
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
	if demoCity != 0 {
		if _, err := application.Diagnostics().DemonstrateAccess(ctx, demoCity); err != nil {
			log.Printf("Access demonstration failed: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case err := <-application.Errors():
		log.Printf("Server failed: %v", err)
	}

	if err := application.Stop(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

func printBanner(cfg *config.Config) {
	log.Printf("worlddb %s", version)
	log.Printf("Configuration:")
	log.Printf("  Engine:     %s %v", cfg.Engine.Driver, cfg.Engine.Addresses)
	log.Printf("  Repository: %s", cfg.Repository.Kind)
	log.Printf("  HTTP:       %s", cfg.HTTP.Addr)
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:       %s", cfg.GRPC.Addr)
	}
	if cfg.Cache.Enabled {
		log.Printf("  Cache:      %s (ttl %v)", cfg.Cache.Addr, cfg.Cache.TTL)
	}
	if cfg.Dataset.LoadOnStart {
		if cfg.Dataset.Sample {
			log.Printf("  Dataset:    embedded sample")
		} else {
			log.Printf("  Dataset:    %s %v%s", cfg.Dataset.Storage.Type, cfg.Dataset.Objects, cfg.Dataset.Prefix)
		}
	}
}
