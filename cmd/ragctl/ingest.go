package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dgallion1/ragdoc/internal/app"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <url>",
		Short: "Fetch, segment, embed and store a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Ingester.Ingest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}
