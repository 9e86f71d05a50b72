package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dgallion1/ragdoc/internal/app"
	"github.com/dgallion1/ragdoc/internal/config"
	"github.com/dgallion1/ragdoc/internal/logger"
)

const rootLongDesc string = `ragctl ingests documents into the vector store and asks questions
over them, or runs the HTTP server with "ragctl serve".

Configuration comes from the same environment variables (and optional
CONFIG_FILE) as the server.

Example:
  ragctl ingest https://arxiv.org/pdf/1706.03762
  ragctl retrieve "what is multi-head attention" --top 3
  ragctl query "what is multi-head attention"`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ragctl",
		Short:        "Multimodal document retrieval from the command line",
		Long:         rootLongDesc,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newRetrieveCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// withApp loads configuration, builds the components and hands them to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.LogDebug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(
		logger.WithDebug(cfg.LogDebug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
