package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/idea-workbench/internal/server"
)

var (
	servePort             int
	serveClarifyMaxRounds int
	serveStageTimeoutSecs int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for submitting ideas, answering clarification questions, and advancing the analysis pipeline.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().IntVar(&serveClarifyMaxRounds, "clarify-max-rounds", 0, "Clarification round cap (0 uses the default)")
	serveCmd.Flags().IntVar(&serveStageTimeoutSecs, "stage-timeout", 0, "Per-stage capability deadline in seconds (0 uses the default)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	// Get database URL from environment
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	// Capability backend: a remote URL, or the built-in Gemini provider
	capabilityURL := os.Getenv("CAPABILITY_URL")
	apiKey := os.Getenv("GEMINI_API_KEY")
	if capabilityURL == "" && apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY or CAPABILITY_URL environment variable is required")
	}

	cfg := server.Config{
		Port:             servePort,
		DatabaseURL:      databaseURL,
		APIKey:           apiKey,
		CapabilityURL:    capabilityURL,
		ClarifyMaxRounds: serveClarifyMaxRounds,
		StageTimeout:     time.Duration(serveStageTimeoutSecs) * time.Second,
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
