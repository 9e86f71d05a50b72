package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dgallion1/ragdoc/internal/app"
)

func newRetrieveCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "retrieve <question>",
		Short: "List the stored fragments most similar to a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				results, err := a.Retriever.Retrieve(ctx, args[0], topK)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Number of results to return (0 uses DEFAULT_TOP_K)")
	return cmd
}

func newQueryCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from retrieved text and images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				ans, err := a.Answerer.Answer(ctx, args[0], topK)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ans)
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Number of fragments to retrieve (0 uses DEFAULT_TOP_K)")
	return cmd
}
