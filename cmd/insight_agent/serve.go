package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextraction/insight-engine/internal/config"
	"github.com/nextraction/insight-engine/internal/db"
	"github.com/nextraction/insight-engine/internal/server"
	"github.com/nextraction/insight-engine/internal/tasks"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes endpoints to start analysis runs and follow their status and event streams.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.FromEnv()
	if cmd.Flags().Changed("port") || cfg.Port == 0 {
		cfg.Port = servePort
	}

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.ResearchURL == "" {
		return fmt.Errorf("RESEARCH_API_URL environment variable is required")
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	registry := tasks.NewRegistry()
	orchestrator, cleanup, err := buildOrchestrator(ctx, cfg, database, registry)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.New(server.Config{
		Port:      cfg.Port,
		JWTSecret: cfg.JWTSecret,
	}, registry, orchestrator, database)

	return srv.Start()
}
