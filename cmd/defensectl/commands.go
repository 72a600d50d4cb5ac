package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/app"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/config"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/database"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/logger"
)

const cliActor = "system:defensectl"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "defensectl",
		Short:         "Operator tooling for the thesis defense scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newAutoAssignCmd())
	return root
}

func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logr, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck
			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.RunMigrations(db.DB, logr)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logr, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck
			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.RollbackMigrations(db.DB, steps, logr)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func newAutoAssignCmd() *cobra.Command {
	var opts models.AutoAssignOptions
	cmd := &cobra.Command{
		Use:   "auto-assign",
		Short: "Run one auto-assign pass and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logr, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			container, err := app.Build(cfg, logr)
			if err != nil {
				return err
			}
			defer container.Close()

			opts.Actor = cliActor
			result, err := container.AutoAssign.AutoAssign(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&opts.TagPriority, "tags", nil, "tag priority, highest first")
	flags.IntVar(&opts.PerSessionCap, "cap", 0, "upper bound on active assignments per committee session, existing ones included (0 uses the configured default)")
	flags.StringSliceVar(&opts.OverrideTopicCodes, "override", nil, "topic codes allowed to skip the tag match")
	flags.StringVar(&opts.OverrideReason, "reason", "", "reason recorded for overridden topics")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "plan without writing")
	return cmd
}

func printResult(w io.Writer, result *models.AutoAssignResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
