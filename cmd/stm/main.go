package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/tgienger/taskmanager/internal/client"
	"github.com/tgienger/taskmanager/internal/config"
	"github.com/tgienger/taskmanager/internal/logger"
	"github.com/tgienger/taskmanager/internal/ui"
	"github.com/tgienger/taskmanager/internal/ui/views"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("stm %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI, so logs only go to a file
	log := zap.NewNop()
	if cfg.Log.File != "" {
		log, err = logger.NewFile(cfg.Log.File, cfg.Log.Level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
	}
	defer log.Sync()

	mode := views.ReconcileRefetch
	if cfg.Client.Reconcile == "patch" {
		mode = views.ReconcilePatch
	}

	api := client.New(cfg.Client.BaseURL, cfg.Client.Timeout)
	log.Info("Starting stm", zap.String("api", cfg.Client.BaseURL), zap.String("version", version))

	// Create and run the application
	app := ui.NewApp(api, mode, log)
	p := tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running application: %v\n", err)
		os.Exit(1)
	}
}
