package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/idea-workbench/internal/capability"
	"github.com/jonathan/idea-workbench/internal/config"
	"github.com/jonathan/idea-workbench/internal/db"
	"github.com/jonathan/idea-workbench/internal/llm"
	"github.com/jonathan/idea-workbench/internal/observability"
	"github.com/jonathan/idea-workbench/internal/workflow"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Refine one idea end-to-end",
	Long: `Submits an idea and drives it through the full analysis pipeline: classification -> clarification -> product -> customer -> risk -> engineer -> diagram -> summary.

Clarification questions are printed but not answered interactively; pass --answer once per open question to answer the first round, otherwise the dialogue is finished immediately. Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runWorkflowCmd,
}

var (
	runConfigPath       string
	runTitle            string
	runUserID           string
	runAPIKey           string
	runCapabilityURL    string
	runDatabaseURL      string
	runClarifyMaxRounds int
	runStageTimeoutSecs int
	runAnswers          []string
	runVerbose          bool
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runTitle, "title", "t", "", "The raw idea to refine")
	runCommand.Flags().StringArrayVar(&runAnswers, "answer", nil, "Answer to an open clarification question (repeatable, one per question)")
	runCommand.Flags().IntVar(&runClarifyMaxRounds, "clarify-max-rounds", 0, "Clarification round cap (0 uses the default)")
	runCommand.Flags().IntVar(&runStageTimeoutSecs, "stage-timeout", 0, "Per-stage capability deadline in seconds (0 uses the default)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")

	// API key can be passed as a flag, or read from env var GEMINI_API_KEY
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	runCommand.Flags().StringVar(&runCapabilityURL, "capability-url", "", "Remote capability backend base URL (optional, defaults to CAPABILITY_URL env var)")

	// Database URL for workflow persistence
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(runCommand)
}

func runWorkflowCmd(cmd *cobra.Command, _ []string) error {
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
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = runAPIKey
	}
	if cmd.Flags().Changed("capability-url") {
		cfg.CapabilityURL = runCapabilityURL
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if cmd.Flags().Changed("clarify-max-rounds") {
		cfg.ClarifyMaxRounds = runClarifyMaxRounds
	}
	if cmd.Flags().Changed("stage-timeout") {
		cfg.StageTimeoutSeconds = runStageTimeoutSecs
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}

	// Step 3: Validate required fields
	if runTitle == "" {
		return fmt.Errorf("--title is required")
	}
	if cfg.UserID == "" {
		return fmt.Errorf("user_id is required (via config file)")
	}

	// Step 4: Backend handling
	if cfg.CapabilityURL == "" {
		cfg.CapabilityURL = os.Getenv("CAPABILITY_URL")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.CapabilityURL == "" && cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}

	// Step 5: Database URL handling
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	userID, err := uuid.Parse(cfg.UserID)
	if err != nil {
		return fmt.Errorf("invalid user_id format: %w", err)
	}

	stageTimeout := time.Duration(cfg.StageTimeoutSeconds) * time.Second
	if stageTimeout <= 0 {
		// Resolve the default here so the HTTP client backstop below always
		// exceeds the machine's stage deadline.
		stageTimeout = workflow.DefaultStageTimeout
	}

	var invoker capability.Invoker
	if cfg.CapabilityURL != "" {
		invoker = capability.NewHTTPClient(cfg.CapabilityURL, stageTimeout+10*time.Second)
	} else {
		client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}
		defer client.Close() //nolint:errcheck
		invoker = capability.NewGeminiProvider(client)
	}

	machine := workflow.NewMachine(database, invoker, workflow.Options{
		ClarifyMaxRounds: cfg.ClarifyMaxRounds,
		StageTimeout:     stageTimeout,
	})

	printer := observability.NewPrinter(os.Stdout)

	state, err := machine.SubmitIdea(ctx, userID, runTitle)
	if err != nil {
		var capErr *workflow.CapabilityError
		if state == nil || !errors.As(err, &capErr) {
			return fmt.Errorf("failed to submit idea: %w", err)
		}
		// Project exists but the clarifier never opened; the pipeline
		// can still run with clarification bypassed.
		fmt.Fprintf(os.Stderr, "Warning: clarification unavailable: %v\n", err)
	}

	if cfg.Verbose {
		printer.PrintState(state)
		printer.PrintClassification(state.Classification)
	}

	if state.Position == workflow.PositionClarifying {
		printer.PrintOpenQuestions(state.OpenQuestions)

		if len(runAnswers) > 0 {
			state, err = machine.SubmitClarificationAnswers(ctx, userID, state.ProjectID, runAnswers)
			if err != nil {
				return fmt.Errorf("failed to submit clarification answers: %w", err)
			}
			printer.PrintOpenQuestions(state.OpenQuestions)
		}

		if state.SubState != workflow.SubStateReadyToAdvance {
			if _, err := machine.FinishClarification(ctx, userID, state.ProjectID); err != nil {
				return fmt.Errorf("failed to finish clarification: %w", err)
			}
		}
	}

	final, err := machine.RunToCompletion(ctx, userID, state.ProjectID,
		func(stage workflow.Stage, st *workflow.State) {
			if cfg.Verbose {
				printer.PrintStageOutput(stage, st.StageOutputs[stage])
			} else {
				fmt.Fprintf(os.Stdout, "✓ %s\n", stage)
			}
		})
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	printer.PrintCompletion(final)
	return nil
}
