package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loom-dev/loom/internal/config"
	"github.com/loom-dev/loom/internal/dev"
)

func devCmd() *cobra.Command {
	var (
		port        int
		host        string
		openBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Start the development server",
		Long: `Start the development server with on-demand compiles.

The dev server routes API requests to their registered prefixes,
serves everything else through the SSR entry, and reloads handler
modules on every request so edits apply immediately.

Features:
  • Per-request module reload
  • Error overlay in browser
  • Hot reload over WebSocket
  • Self-reference imports between targets

Examples:
  loom dev
  loom dev --port=8080
  loom dev --host=0.0.0.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDev(port, host, openBrowser)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to run on (default from loom.json)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from loom.json)")
	cmd.Flags().BoolVarP(&openBrowser, "open", "o", false, "Open browser on start")

	return cmd
}

func runDev(port int, host string, openBrowser bool) error {
	// Load config
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}

	// Check for the module runtime
	if _, err := exec.LookPath(cfg.Bundler.Runtime); err != nil {
		errorMsg("Module runtime '%s' is not installed or not in PATH", cfg.Bundler.Runtime)
		info("Install Node.js from https://nodejs.org")
		return err
	}

	// Apply command-line overrides
	if port > 0 {
		cfg.Dev.Port = port
	}
	if host != "" {
		cfg.Dev.Host = host
	}
	if openBrowser {
		cfg.Dev.OpenBrowser = true
	}

	// Print banner
	printBanner()
	fmt.Println("  dev")
	fmt.Println()

	// Create server
	server, err := dev.NewServer(dev.ServerOptions{
		Config:  cfg,
		Verbose: true,
		OnReload: func(clients int) {
			success("Reloaded %d browsers", clients)
		},
	})
	if err != nil {
		return err
	}

	// Handle signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\n\n  Shutting down...")
		cancel()
		server.Stop()
	}()

	// Open browser if requested
	if cfg.Dev.OpenBrowser {
		go func() {
			// Wait a bit for server to start
			openURL(cfg.DevURL())
		}()
	}

	// Start server
	return server.Start(ctx)
}

// openURL opens a URL in the default browser.
func openURL(url string) {
	var cmd *exec.Cmd

	switch {
	case commandExists("xdg-open"):
		cmd = exec.Command("xdg-open", url)
	case commandExists("open"):
		cmd = exec.Command("open", url)
	case commandExists("start"):
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}

	cmd.Start()
}

// commandExists checks if a command exists in PATH.
func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
