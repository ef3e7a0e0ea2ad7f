package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"persistence-engine/internal/config"
	"persistence-engine/internal/server"
)

func main() {
	var configPath, preset string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&preset, "preset", "", "Configuration preset: development, debug, release, production")
	flag.Usage = printUsage
	flag.Parse()

	cfg, err := config.LoadPreset(preset, configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Persistence Engine Server

Usage:
  %s [options]

Options:
  -config string
        Path to configuration file (defaults and environment only when empty)
  -preset string
        Configuration preset: development, debug, release, production
  -h, --help
        Show this help message

Environment Variables:
  Configuration can be overridden using environment variables with the PERSIST_ prefix.

Examples:
  # Start with default config
  %s

  # Start with custom config file
  %s -config /path/to/config.yaml

  # Serve the database kind to remote clients
  PERSIST_REMOTE_LISTEN=:9090 PERSIST_REMOTE_SERVE_KIND=database %s

  # Expose Prometheus metrics and log trace spans
  PERSIST_METRICS_ENABLED=true PERSIST_TRACING_ENABLED=true %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}
