package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the sync engine without the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.sync(ctx, once, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single scan cycle, print its summary and exit")
	return cmd
}

func (a *app) sync(ctx context.Context, once bool, out io.Writer) error {
	l, closeLedger, err := openLedger(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer closeLedger.Close()

	engine, err := newEngine(a.cfg, l, nil, a.log)
	if err != nil {
		return err
	}
	if once {
		stats := engine.RunOnce(ctx)
		return json.NewEncoder(out).Encode(stats)
	}
	engine.Run(ctx)
	<-ctx.Done()
	engine.Stop()
	return nil
}
