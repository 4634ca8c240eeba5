// Command seed stores the sample workflows for a user.
package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/spf13/cobra"

	"agent-architect/backend/internal/auth"
	"agent-architect/backend/internal/config"
	"agent-architect/backend/internal/logging"
	"agent-architect/backend/internal/repository"
	"agent-architect/backend/internal/workflowfile"
	"agent-architect/backend/pkg/models"
)

//go:embed workflows/*.yaml
var samples embed.FS

func main() {
	var configPath, email string

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Store the sample workflows for a user",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

			repo, err := repository.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			return seed(cmd.Context(), repo, email, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&email, "email", auth.DevEmail, "owner of the seeded workflows")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// seed creates every sample the user does not have yet, matched by name.
func seed(ctx context.Context, repo repository.Repository, email string, logger *logging.Logger) error {
	user, err := repo.GetUserByEmail(ctx, email)
	if err != nil {
		logger.Info("creating user", "email", email)
		user = &models.User{Email: email, Name: "Seed User"}
		if err := repo.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
	}

	existing, err := repo.ListWorkflows(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list existing workflows: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, w := range existing {
		names[w.Name] = true
	}

	files, err := fs.Glob(samples, "workflows/*.yaml")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, file := range files {
		data, err := samples.ReadFile(file)
		if err != nil {
			return err
		}
		w, err := workflowfile.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path.Base(file), err)
		}
		if names[w.Name] {
			logger.Info("skipping existing workflow", "name", w.Name)
			continue
		}
		w.UserID = user.ID
		if err := repo.CreateWorkflow(ctx, w); err != nil {
			return fmt.Errorf("failed to create workflow %s: %w", w.Name, err)
		}
		logger.Info("seeded workflow", "name", w.Name, "id", w.ID)
	}
	logger.Info("seeding complete")
	return nil
}
