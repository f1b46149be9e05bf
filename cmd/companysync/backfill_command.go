package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/companysync-backend/internal/app"
)

func newBackfillCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "One-off data repairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newBackfillCreatedAtCommand(ctx))
	return cmd
}

func newBackfillCreatedAtCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "created-at",
		Short: "Set missing company created_at from the earliest image",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.CreatedAtBackfill().Run(cmd.Context(), dryRun)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if res.DryRun {
					fmt.Fprintf(out, "Dry run: %d companies would be updated.\n", res.Candidates)
					return nil
				}
				fmt.Fprintf(out, "Updated %d of %d companies.\n", res.Updated, res.Candidates)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only count the companies that would change")
	return cmd
}
