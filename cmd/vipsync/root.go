package main

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datamakelaar/internal/application"
	"github.com/JonMunkholm/datamakelaar/internal/config"
	"github.com/JonMunkholm/datamakelaar/internal/logging"
)

const appName = "vipsync"

// cli carries state shared by the subcommands.
type cli struct {
	envFile  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Synchronise object API datasets with Excel workbooks",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "env file to load (default .env when present)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override LOG_LEVEL: debug, info, warn, error")

	root.AddCommand(
		newDatasetsCmd(c),
		newColumnsCmd(c),
		newExportCmd(c),
		newValidateCmd(c),
		newImportCmd(c),
		newServeCmd(c),
		newVersionCmd(),
	)
	return root
}

// load reads the env file and configuration and sets up logging on stderr.
func (c *cli) load(cmd *cobra.Command) error {
	if c.envFile != "" {
		if err := godotenv.Overload(c.envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", c.envFile, err)
		}
	} else {
		_ = godotenv.Overload()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}

	c.cfg = cfg
	c.logger = logging.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	return nil
}

// app builds the application for one command run. Callers must Close it.
func (c *cli) app(cmd *cobra.Command) (*application.App, error) {
	return application.New(cmd.Context(), c.cfg, c.logger)
}
