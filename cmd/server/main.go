// Command server runs the agent workflow service, or a single workflow file
// from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agent-architect/backend/internal/config"
	"agent-architect/backend/internal/engine"
	"agent-architect/backend/internal/logging"
	"agent-architect/backend/internal/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "server",
		Short:        "Design and execute agent workflows",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml)")

	serve := newServeCmd(&configPath)
	root.AddCommand(serve, newRunCmd(&configPath))
	// no subcommand behaves like serve
	root.RunE = serve.RunE
	return root
}

// loadConfig loads the configuration and builds the logger it describes.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	return cfg, logger, nil
}

// newModel builds the Gemini client from the llm section.
func newModel(ctx context.Context, cfg *config.Config, logger *logging.Logger) (engine.Model, error) {
	return services.NewGeminiClient(ctx, services.GeminiConfig{
		APIKey:          cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		TopP:            cfg.LLM.TopP,
		TopK:            cfg.LLM.TopK,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		BaseURL:         cfg.LLM.BaseURL,
	}, logger)
}
