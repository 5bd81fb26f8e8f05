package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tinoosan/dubsync/internal/config"
	"github.com/tinoosan/dubsync/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile  string
	cfg      *config.Config
	log      *slog.Logger
	closeLog io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "dubsync",
		Short:         "Fetch media for the dubbing pipeline and back up its finished outputs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closeLog != nil {
				_ = a.closeLog.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")

	root.AddCommand(newServeCmd(a), newSyncCmd(a), newFetchCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Prepare(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log, a.closeLog = logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	slog.SetDefault(a.log)
	return nil
}
