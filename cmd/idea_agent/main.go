// Package main provides the entry point for the Idea Workbench HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "idea_agent",
	Short: "Idea Workbench HTTP API Server",
	Long:  "Idea Workbench refines raw product ideas through a clarification dialogue and an ordered analysis pipeline, exposed via REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
