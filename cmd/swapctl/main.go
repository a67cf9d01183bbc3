package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"swap-orchestrator/config"
	"swap-orchestrator/core/editclient"
	"swap-orchestrator/core/models"
	"swap-orchestrator/core/pipeline"
	"swap-orchestrator/core/registry"
	"swap-orchestrator/storage"
)

var (
	backgroundPath  string
	personPath      string
	outputDir       string
	addPersonPrompt string
	compositePrompt string
	swapPrompt      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "swapctl",
		Short: "Run the staged person-swap pipeline from the command line",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline on two local images",
		RunE:  runPipeline,
	}
	runCmd.Flags().StringVar(&backgroundPath, "background", "", "path to the background/scene image (required)")
	runCmd.Flags().StringVar(&personPath, "person", "", "path to the person source image (required)")
	runCmd.Flags().StringVar(&outputDir, "output", "output", "directory for session artifacts")
	runCmd.Flags().StringVar(&addPersonPrompt, "add-person-prompt", "", "override the add-person prompt")
	runCmd.Flags().StringVar(&compositePrompt, "composite-prompt", "", "override the composite prompt")
	runCmd.Flags().StringVar(&swapPrompt, "swap-prompt", "", "override the swap prompt")
	runCmd.MarkFlagRequired("background")
	runCmd.MarkFlagRequired("person")

	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.EditAPIKey == "" {
		return fmt.Errorf("BFL_API_KEY is required (set it in the environment or a .env file)")
	}

	background, err := os.ReadFile(backgroundPath)
	if err != nil {
		return fmt.Errorf("failed to read background image: %w", err)
	}
	person, err := os.ReadFile(personPath)
	if err != nil {
		return fmt.Errorf("failed to read person image: %w", err)
	}

	artifacts, err := storage.NewDiskStore(outputDir)
	if err != nil {
		return err
	}

	editor := editclient.NewClient(editclient.Options{
		BaseURL:        cfg.EditAPIURL,
		APIKey:         cfg.EditAPIKey,
		AttemptTimeout: cfg.EditTimeout,
		Policy: editclient.Policy{
			MaxAttempts: cfg.EditMaxAttempts,
			BaseDelay:   cfg.EditBaseDelay,
			Multiplier:  2.0,
			MaxDelay:    cfg.EditTimeout,
		},
	})

	reg := registry.New(registry.NewMemoryStore(), artifacts)
	orchestrator := pipeline.New(reg, artifacts, editor)

	prompts := config.MergePrompts(cfg.DefaultPrompts, models.Prompts{
		AddPerson: addPersonPrompt,
		Composite: compositePrompt,
		Swap:      swapPrompt,
	})

	session, err := orchestrator.Run(context.Background(), pipeline.RunInput{
		Background:     background,
		BackgroundMime: "image/jpeg",
		Person:         person,
		PersonMime:     "image/jpeg",
		Prompts:        prompts,
	})
	if err != nil {
		return err
	}

	if session.Status == models.SessionStatusFailed {
		return fmt.Errorf("pipeline failed at stage %s: %s (%s)",
			session.Error.Stage, session.Error.Message, session.Error.Kind)
	}

	log.Printf("Session %s completed", session.ID)
	for _, kind := range session.ArtifactKinds() {
		fmt.Printf("%-14s %s\n", kind, session.Artifacts[kind].Path)
	}
	return nil
}
