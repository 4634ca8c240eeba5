package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"agent-architect/backend/internal/engine"
	"agent-architect/backend/internal/logging"
	"agent-architect/backend/internal/workflowfile"
	"agent-architect/backend/pkg/models"
)

type runOptions struct {
	workflowPath string
	inputsPath   string
	outputPath   string
	parallelism  int
}

func newRunCmd(configPath *string) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a workflow file once and print its results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("parallelism") {
				opts.parallelism = cfg.Execution.Parallelism
			}
			model, err := newModel(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return runWorkflow(cmd.Context(), opts, model, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.workflowPath, "file", "f", "", "workflow YAML file")
	cmd.Flags().StringVar(&opts.inputsPath, "inputs", "", "JSON file with global inputs")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "write the result JSON here instead of stdout")
	cmd.Flags().IntVar(&opts.parallelism, "parallelism", 1, "maximum agents invoked at once")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runWorkflow(ctx context.Context, opts runOptions, model engine.Model, logger *logging.Logger, stdout, stderr io.Writer) error {
	workflow, err := workflowfile.Load(opts.workflowPath)
	if err != nil {
		return err
	}
	globals, err := loadInputs(opts.inputsPath)
	if err != nil {
		return err
	}

	orch := engine.NewOrchestrator(*workflow, engine.NewInvoker(model, logger),
		engine.WithParallelism(opts.parallelism),
		engine.WithLogger(logger),
		engine.WithUpdateHandler(func(u models.ExecutionUpdate) {
			fmt.Fprintf(stderr, "[%s] %s\n", u.Type, u.Message)
		}),
	)
	orch.Initialize()
	result, err := orch.Execute(ctx, globals)
	if err != nil {
		return fmt.Errorf("workflow %q failed: %w", workflow.Name, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')
	if opts.outputPath == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := renameio.WriteFile(opts.outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.outputPath, err)
	}
	return nil
}

// loadInputs reads a JSON object of global inputs. An empty path yields no inputs.
func loadInputs(path string) (map[string]any, error) {
	globals := map[string]any{}
	if path == "" {
		return globals, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inputs: %w", err)
	}
	if err := json.Unmarshal(data, &globals); err != nil {
		return nil, fmt.Errorf("inputs must be a JSON object: %w", err)
	}
	if globals == nil {
		globals = map[string]any{}
	}
	return globals, nil
}
