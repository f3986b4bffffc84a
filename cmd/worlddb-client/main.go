// Package main implements worlddb-client, a thin client that connects
// straight to the engine, shows what it holds and prints the most
// populated cities.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "github.com/arkilian/worlddb/internal/api/grpc"
	"github.com/arkilian/worlddb/internal/app"
	"github.com/arkilian/worlddb/internal/config"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/partition"
	"github.com/arkilian/worlddb/internal/repository"
	"github.com/arkilian/worlddb/internal/world"
)

func main() {
	var (
		configFile string
		driver     string
		addresses  string
		grpcAddr   string
		limit      int
		cityID     int64
		load       bool
		timeout    time.Duration
	)
	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&driver, "driver", "", "Engine driver: sqlite3, sqlite, pgx, mysql")
	flag.StringVar(&addresses, "addresses", "", "Comma-separated engine addresses")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "Read the ranking from a worlddb gRPC server instead of the engine")
	flag.IntVar(&limit, "limit", 3, "Number of cities to print")
	flag.Int64Var(&cityID, "city", 34, "City id read by the access demo")
	flag.BoolVar(&load, "load", false, "Load the configured dataset before querying")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if driver != "" {
		cfg.Engine.Driver = driver
	}
	if addresses != "" {
		cfg.Engine.Addresses = strings.Split(addresses, ",")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	session, err := app.OpenSession(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer session.Close()

	if load {
		stats, err := app.LoadDataset(ctx, cfg, session, nil)
		if err != nil {
			log.Fatalf("Failed to load dataset: %v", err)
		}
		log.Printf("Dataset loaded: %d statements", stats.Statements)
	}

	affinity, err := partition.NewAffinity(cfg.Partitions)
	if err != nil {
		log.Fatalf("Invalid partition count: %v", err)
	}
	diag := world.NewDiagnostics(session, affinity)
	if err := diag.LogStartup(ctx); err != nil {
		log.Fatalf("Failed to read engine metadata: %v", err)
	}
	if _, err := diag.DemonstrateAccess(ctx, cityID); err != nil {
		log.Fatalf("Access demonstration failed: %v", err)
	}

	var rows []model.PopulousCity
	if grpcAddr != "" {
		conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatalf("Failed to dial %s: %v", grpcAddr, err)
		}
		defer conn.Close()
		rows, err = grpcapi.NewClient(conn).MostPopulated(ctx, limit)
		if err != nil {
			log.Fatalf("MostPopulated failed: %v", err)
		}
	} else {
		cities, err := repository.NewCityRepository(session)
		if err != nil {
			log.Fatalf("Failed to prepare queries: %v", err)
		}
		rows, err = cities.FindTopXMostPopulatedCities(ctx, limit)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
	}

	if err := world.PrintTopCities(os.Stdout, rows); err != nil {
		log.Fatalf("Failed to print: %v", err)
	}
}
