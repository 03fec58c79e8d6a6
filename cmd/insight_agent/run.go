package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextraction/insight-engine/internal/config"
	"github.com/nextraction/insight-engine/internal/db"
	"github.com/nextraction/insight-engine/internal/observability"
	"github.com/nextraction/insight-engine/internal/pipeline"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the full market analysis pipeline end-to-end",
	Long: `Orchestrates the entire analysis: deep research -> keywords -> subreddit discovery -> scraping -> post filtering -> JTBD/pains/gains analyses -> final synthesis -> personas -> overview.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath  string
	runName        string
	runDescription string
	runIndustry    string
	runStage       string
	runUserID      string
	runAPIKey      string
	runDatabaseURL string
	runResearchURL string
	runBreadth     int
	runDepth       int
	runPersonas    int
	runVerbose     bool
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runName, "name", "n", "", "Project name")
	runCommand.Flags().StringVarP(&runDescription, "description", "d", "", "Product description to analyze")
	runCommand.Flags().StringVar(&runIndustry, "industry", "", "Industry label")
	runCommand.Flags().StringVar(&runStage, "stage", "", "Venture stage label")
	runCommand.Flags().StringVar(&runUserID, "user-id", "", "Owning user UUID (required for database persistence)")
	runCommand.Flags().IntVar(&runBreadth, "breadth", 0, "Deep research breadth")
	runCommand.Flags().IntVar(&runDepth, "depth", 0, "Deep research depth")
	runCommand.Flags().IntVar(&runPersonas, "personas", 0, "Number of personas to generate")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed progress information")

	// API key can be passed as a flag, or read from env var GEMINI_API_KEY
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")

	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	runCommand.Flags().StringVar(&runResearchURL, "research-url", "", "Deep research service URL (optional, defaults to RESEARCH_API_URL env var)")

	rootCmd.AddCommand(runCommand)
}

// consoleReporter prints status and log events for one-shot runs.
type consoleReporter struct{}

func (consoleReporter) ReportStatus(taskID string, status pipeline.Status, dataKey string, dataValue any) {
	log.Printf("[STATUS UPDATE] Task %s: %s", taskID, status)
}

func (consoleReporter) Log(taskID, message string) {
	log.Printf("[LOG] Task %s: %s", taskID, message)
}

// discardStore is used when no database is configured; results are only
// printed, never persisted.
type discardStore struct{}

func (discardStore) SaveResults(ctx context.Context, projectID string, results *pipeline.Results) error {
	return nil
}

func (discardStore) GetUserEmail(ctx context.Context, projectID string) (string, error) {
	return "", nil
}

func (discardStore) SetProjectFailed(ctx context.Context, projectID, message string) error {
	return nil
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	// Step 1: Load config file if provided
	var cfg config.Config
	if runConfigPath != "" {
		loadedCfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := loadedCfg.Validate(); err != nil {
			return err
		}

		cfg = *loadedCfg
		if runVerbose {
			_, _ = fmt.Fprintf(os.Stdout, "Loaded config from: %s\n", runConfigPath)
		}
	}

	// Step 2: Apply CLI overrides (command-line args take priority)
	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("name") {
		cfg.Name = runName
	}
	if cmd.Flags().Changed("description") {
		cfg.ProductDescription = runDescription
	}
	if cmd.Flags().Changed("industry") {
		cfg.Industry = runIndustry
	}
	if cmd.Flags().Changed("stage") {
		cfg.Stage = runStage
	}
	if cmd.Flags().Changed("user-id") {
		cfg.UserID = runUserID
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = runAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if cmd.Flags().Changed("research-url") {
		cfg.ResearchURL = runResearchURL
	}
	if cmd.Flags().Changed("breadth") {
		cfg.ResearchBreadth = runBreadth
	}
	if cmd.Flags().Changed("depth") {
		cfg.ResearchDepth = runDepth
	}
	if cmd.Flags().Changed("personas") {
		cfg.PersonaCount = runPersonas
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}

	// Step 3: Fill remaining values from the environment
	cfg = cfg.MergeWithDefaults(config.FromEnv())
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Step 4: Validate required fields
	if cfg.ProductDescription == "" {
		return fmt.Errorf("--description is required (via flag or config)")
	}
	if cfg.Name == "" {
		cfg.Name = "Untitled Project"
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}
	if cfg.ResearchURL == "" {
		return fmt.Errorf("RESEARCH_API_URL environment variable or --research-url flag is required")
	}

	taskID := uuid.NewString()
	projectID := uuid.NewString()

	// Database is optional in one-shot mode
	var store pipeline.ResultStore = discardStore{}
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		if err := database.CreateProject(ctx, db.NewProject{
			ID:          projectID,
			UserID:      cfg.UserID,
			Name:        cfg.Name,
			Industry:    cfg.Industry,
			Stage:       cfg.Stage,
			Description: cfg.ProductDescription,
		}); err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		store = database
	}

	orchestrator, cleanup, err := buildOrchestrator(ctx, cfg, store, consoleReporter{})
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := orchestrator.Run(ctx, pipeline.Request{
		TaskID:             taskID,
		ProjectID:          projectID,
		Name:               cfg.Name,
		ProductDescription: cfg.ProductDescription,
		Industry:           cfg.Industry,
		StageLabel:         cfg.Stage,
		RequesterID:        cfg.UserID,
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if cfg.Verbose {
		printer := observability.NewPrinter(os.Stdout)
		printer.PrintTrendsReport(results.KeyTrends)
		printer.PrintPersonas(results.Personas)
		printer.PrintOverview(results.Overview)
		printer.PrintTimingSummary(results.Timings)
	}

	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}
