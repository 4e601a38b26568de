package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/agentsim/society/internal/agents"
	"github.com/agentsim/society/internal/api"
	"github.com/agentsim/society/internal/db"
	"github.com/agentsim/society/internal/experiment"
)

func main() {
	// Get configuration from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "society.db"
	}

	experimentsDir := os.Getenv("EXPERIMENTS_DIR")
	if experimentsDir == "" {
		experimentsDir = "experiments"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Initialize database
	database, err := db.NewDB(dbPath)
	if err != nil {
		slog.Error("failed to initialize database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Model client and generator; options fall back to OPENROUTER_* env.
	gen := agents.NewGenerator(agents.NewClient(agents.Options{}))

	manager := experiment.NewManager(experimentsDir, gen)
	server := api.NewServer(database, manager, gen)

	addr := fmt.Sprintf(":%s", port)
	slog.Info("starting server", "addr", addr, "experiments_dir", experimentsDir)

	if err := http.ListenAndServe(addr, server); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
