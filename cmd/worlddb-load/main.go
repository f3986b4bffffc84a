// Package main implements worlddb-load, which publishes dataset scripts
// to object storage and loads them into the engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arkilian/worlddb/internal/app"
	"github.com/arkilian/worlddb/internal/config"
	"github.com/arkilian/worlddb/internal/dataset"
)

func main() {
	var (
		configFile string
		driver     string
		addresses  string
		publish    string
		object     string
		compress   bool
		sample     bool
		prefix     string
		timeout    time.Duration
	)
	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&driver, "driver", "", "Engine driver: sqlite3, sqlite, pgx, mysql")
	flag.StringVar(&addresses, "addresses", "", "Comma-separated engine addresses")
	flag.StringVar(&publish, "publish", "", "Local SQL file to publish to the object store before loading")
	flag.StringVar(&object, "object", "", "Object path for -publish (default: the file name)")
	flag.BoolVar(&compress, "compress", true, "Snappy-compress published scripts")
	flag.BoolVar(&sample, "sample", false, "Publish the embedded sample world instead of a file")
	flag.StringVar(&prefix, "prefix", "", "Load every object under this prefix")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall timeout")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "worlddb-load - load world dataset scripts into the engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: worlddb-load [options] [object ...]\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  worlddb-load -sample\n")
		fmt.Fprintf(os.Stderr, "  worlddb-load -publish world.sql -driver pgx -addresses db:5432\n")
		fmt.Fprintf(os.Stderr, "  worlddb-load -prefix world/\n")
	}
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

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	session, err := app.OpenSession(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer session.Close()

	loader := dataset.NewLoader(store, session).WithConcurrency(cfg.Dataset.Concurrency)
	objects := flag.Args()

	if publish != "" || sample {
		data := dataset.SampleWorld
		name := "world/sample.sql"
		if publish != "" {
			if data, err = os.ReadFile(publish); err != nil {
				log.Fatalf("Failed to read %s: %v", publish, err)
			}
			name = filepath.Base(publish)
		}
		if object != "" {
			name = object
		}
		path, err := loader.Publish(ctx, name, data, compress)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Published %s (%d bytes)", path, len(data))
		objects = append(objects, path)
	}

	var stats dataset.Stats
	switch {
	case len(objects) > 0:
		stats, err = loader.Load(ctx, objects...)
	case prefix != "":
		stats, err = loader.LoadPrefix(ctx, prefix)
	case len(cfg.Dataset.Objects) > 0:
		stats, err = loader.Load(ctx, cfg.Dataset.Objects...)
	case cfg.Dataset.Prefix != "":
		stats, err = loader.LoadPrefix(ctx, cfg.Dataset.Prefix)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Load failed: %v", err)
	}
	log.Printf("Loaded %d objects, %d statements in %v", stats.Objects, stats.Statements, stats.Duration)

	// Running services share the cache generation through redis.
	rc, err := app.OpenCache(ctx, cfg)
	if err != nil {
		log.Fatalf("Loaded, but cached results could not be invalidated: %v", err)
	}
	defer rc.Close()
	if _, err := rc.Bump(ctx); err != nil {
		log.Fatalf("Loaded, but cached results could not be invalidated: %v", err)
	}
}
