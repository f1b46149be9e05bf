package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/companysync-backend/internal/app"
	"github.com/yungbote/companysync-backend/internal/modules/pipeline"
)

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	var skipMedia bool

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Match source folders to listings, migrate new companies and copy their media",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				a.Cfg.Pipeline.SkipMedia = skipMedia
				uc, err := a.Pipeline()
				if err != nil {
					return err
				}
				stats, err := uc.Run(cmd.Context())
				fmt.Fprint(cmd.OutOrStdout(), renderPipelineStats(stats))
				return err
			})
		},
	}

	cmd.Flags().String("source-prefix", "", "Source bucket folder holding one sub-folder per company")
	cmd.Flags().String("country", "", "Only match listings from this country")
	cmd.Flags().Float64("threshold", 0, "Minimum similarity ratio for a match (0-1]")
	cmd.Flags().Int("media-workers", 0, "Concurrent entities in the media phase")
	cmd.Flags().BoolVar(&skipMedia, "skip-media", false, "Stop after the company upsert")
	bindFlag(ctx.v, cmd, app.KeySourcePrefix, "source-prefix")
	bindFlag(ctx.v, cmd, app.KeySourceCountry, "country")
	bindFlag(ctx.v, cmd, app.KeyMatchThreshold, "threshold")
	bindFlag(ctx.v, cmd, app.KeyMediaWorkers, "media-workers")
	return cmd
}

func renderPipelineStats(s pipeline.ProcessStats) string {
	itoa := strconv.Itoa
	return renderStats([][2]string{
		{"Folders found", itoa(s.Found)},
		{"Matched", itoa(s.Matched)},
		{"Unmatched", itoa(s.Unmatched)},
		{"Failed batches", itoa(s.FailedBatches)},
		{"Already present", itoa(s.AlreadyPresent)},
		{"Migrated", strconv.FormatInt(s.Migrated, 10)},
		{"With images", itoa(s.WithImages)},
		{"Without images", itoa(s.WithoutImages)},
		{"Media skipped", itoa(s.MediaSkipped)},
		{"Images copied", itoa(s.ImagesCopied)},
		{"Image errors", itoa(s.ImageErrors)},
		{"Entity errors", itoa(s.EntityErrors)},
		{"Reconcile time", s.ReconcileDuration.Round(time.Millisecond).String()},
		{"Media time", s.MediaDuration.Round(time.Millisecond).String()},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
	})
}
