package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinoosan/dubsync/internal/service"
)

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download one URL into the downloads directory and print the file path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.fetch(ctx, args[0], cmd.OutOrStdout())
		},
	}
}

func (a *app) fetch(ctx context.Context, url string, out io.Writer) error {
	svc := service.NewFetch(newFetcher(a.cfg, a.log), 1, a.log)
	res := svc.Fetch(ctx, url)
	if !res.OK() {
		return fmt.Errorf("fetch %s: %w", url, res.Err)
	}
	fmt.Fprintln(out, res.Path)
	return nil
}
