// Main entry point for the development chain server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spectrum-chain/litewallet/core/chain"
	"github.com/spectrum-chain/litewallet/core/logging"
	"github.com/spectrum-chain/litewallet/core/node"
	"github.com/spectrum-chain/litewallet/core/utils"
)

// Version information
const (
	Version = "1.0.0"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Light wallet chain server v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Configuration is read from NODE_* environment variables, e.g.\n")
		fmt.Fprintf(os.Stderr, "  NODE_LISTEN, NODE_DATADIR, NODE_CHAIN_NAME, NODE_BLOCK_INTERVAL,\n")
		fmt.Fprintf(os.Stderr, "  NODE_GENESIS_ADDRESS, NODE_MINER_ADDRESS, NODE_LOG_LEVEL\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		fmt.Printf("Light wallet chain server v%s\n", Version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := node.LoadConfig()
	if err != nil {
		return err
	}

	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	backend := logging.NewWriterBackend(os.Stdout, lvl)
	log := backend.SubLogger("MAIN")
	node.UseLogger(backend.SubLogger("NODE"))
	chain.UseLogger(backend.SubLogger("CHAN"))

	// Create data directory if it doesn't exist
	if !utils.DirExists(cfg.DataDir) {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		log.Infof("Created data directory %s", cfg.DataDir)
	}

	store, err := chain.OpenStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := node.NewNode(store, cfg, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	log.Infof("Chain server v%s running (%s, block interval %s)", Version, cfg.ChainName, cfg.BlockInterval)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := n.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	log.Info("Node stopped gracefully")
	return nil
}
