// Package main provides the entry point for the insight engine.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "insight_agent",
	Short: "Netnographic market research pipeline",
	Long:  "Insight engine combines deep market research, Reddit netnography and LLM analysis into market insight reports and user personas for a product idea, available as a one-shot CLI or a REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
