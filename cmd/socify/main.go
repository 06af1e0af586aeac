package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/socify/socify_downloader/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := NewSocifyCommand()
	if err := command.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func NewSocifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "socify [command] [flags]",
		Short:   "socify downloads the media behind social media content URLs.",
		Version: cli.Version,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdSubmit())
	cmd.AddCommand(cli.NewCmdServe())

	return cmd
}
