package main

import (
	"os"
	"time"

	"agyntsynq/internal/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	apiBase   string
	timeout   time.Duration
	logLevel  string
	logFormat string
}

func (o *rootOptions) logger() (zerolog.Logger, error) {
	return logger.NewWithWriter(os.Stderr, o.logLevel, o.logFormat)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "widgetctl",
		Short:        "Terminal client for the chat widget API",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.apiBase, "api", "http://localhost:8080", "Widget server base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-request timeout")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "Log format (console or json)")

	cmd.AddCommand(newChatCmd(opts), newConfigCmd(opts), newSnippetCmd(opts))
	return cmd
}
