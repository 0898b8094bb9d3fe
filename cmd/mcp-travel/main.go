// Command mcp-travel serves Wayfarer's built-in travel tools over MCP stdio,
// so other agents can call the weather and POI tools directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/soyeahso/wayfarer/internal/config"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/mcp"
	"github.com/soyeahso/wayfarer/internal/store"
	"github.com/soyeahso/wayfarer/internal/tools"
	"github.com/soyeahso/wayfarer/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mcp-travel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	paths, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return err
	}

	// Stdout carries the protocol; logs go to stderr and a file.
	log, closer, err := logging.NewWithOptions(logging.Options{
		Level: cfg.Logging.Level,
		Style: "compact",
		File:  filepath.Join(paths.Logs, "mcp-travel.log"),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	var pois tools.POIQuerier
	if cfg.Store.Driver == "sqlite" {
		db, err := store.Open(paths.DatabasePath(&cfg), log)
		if err != nil {
			log.Warn().Err(err).Msg("poi store unavailable, serving weather only")
		} else {
			defer db.Close()
			pois = store.NewPOIStore(db)
		}
	}

	reg := tools.NewRegistry(cfg.Tools, pois, log)
	log.Info().Int("tools", len(reg.Definitions())).Msg("mcp-travel starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(mcp.ServerInfo{Name: "wayfarer-travel", Version: version.Version}, reg, log)
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}
