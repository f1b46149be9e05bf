package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/companysync-backend/internal/app"
	"github.com/yungbote/companysync-backend/internal/modules/classify"
)

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify pending company images, one entity at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				runner, err := a.ClassifyRunner()
				if err != nil {
					return err
				}
				stats, err := runner.Run(cmd.Context())
				if errors.Is(err, classify.ErrRunnerLocked) {
					fmt.Fprintln(cmd.OutOrStdout(), "Another classification run holds the lock; nothing to do.")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderClassifyStats(stats))
				return err
			})
		},
	}

	cmd.Flags().Int("max-entities", 0, "Entities to visit in this run")
	cmd.Flags().String("timeout", "", "Per-image deadline, e.g. 60s")
	cmd.Flags().String("lock-path", "", "Exclusive lock file enforcing one runner per host")
	bindFlag(ctx.v, cmd, app.KeyClassifyMaxEntities, "max-entities")
	bindFlag(ctx.v, cmd, app.KeyClassifyTimeout, "timeout")
	bindFlag(ctx.v, cmd, app.KeyClassifyLockPath, "lock-path")
	return cmd
}

func renderClassifyStats(s classify.RunStats) string {
	itoa := strconv.Itoa
	return renderStats([][2]string{
		{"Entities", itoa(s.Entities)},
		{"Entities complete", itoa(s.EntitiesDone)},
		{"Images", itoa(s.Images)},
		{"Construction", itoa(s.Construction)},
		{"Not construction", itoa(s.NotConstruction)},
		{"Failed", itoa(s.Failed)},
		{"Timed out", itoa(s.TimedOut)},
		{"Skipped", itoa(s.Skipped)},
		{"Store errors", itoa(s.StoreErrors)},
		{"Duration", s.End.Sub(s.Start).Round(time.Millisecond).String()},
	})
}
