package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/companysync-backend/internal/app"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent classification runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				logs, err := a.Repos.RunLogs.ListRecent(dbctx.New(cmd.Context()), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(logs) == 0 {
					fmt.Fprintln(out, "No classification runs recorded.")
					return nil
				}
				rows := make([][]string, 0, len(logs))
				for _, l := range logs {
					rows = append(rows, []string{
						l.StartTime.UTC().Format(time.RFC3339),
						l.EndTime.Sub(l.StartTime).Round(time.Second).String(),
						strconv.Itoa(l.CompaniesProcessed),
						strconv.Itoa(l.TotalImages),
						strconv.Itoa(l.ConstructionImages),
						strconv.Itoa(l.SuccessfulImages),
						strconv.Itoa(l.FailedImages),
						strconv.Itoa(l.TimedOutImages),
						l.ModelUsed,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Started", "Took", "Companies", "Images", "Construction", "OK", "Failed", "Timed out", "Model"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	return cmd
}
