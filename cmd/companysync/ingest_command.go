package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yungbote/companysync-backend/internal/app"
	"github.com/yungbote/companysync-backend/internal/modules/ingest"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scrape company pages with the actor service and store the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newIngestStartCommand(ctx))
	cmd.AddCommand(newIngestProcessCommand(ctx))
	return cmd
}

func newIngestStartCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the photos and page actors for the next listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				uc, err := a.Ingest()
				if err != nil {
					return err
				}
				batch, err := uc.StartBatch(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if batch == nil {
					fmt.Fprintln(out, "No listings left to scrape.")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"Batch", "Companies", "Photos run", "Page run"},
					[][]string{{batch.ID.String(), strconv.Itoa(batch.CompanyCount), batch.PhotosRunID, batch.PageRunID}},
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().Int("max-companies", 0, "Listings to launch in one batch")
	bindFlag(ctx.v, cmd, app.KeyApifyMaxCompanies, "max-companies")
	return cmd
}

func newIngestProcessCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Read finished actor runs, upsert companies and upload their images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				uc, err := a.Ingest()
				if err != nil {
					return err
				}
				stats, err := uc.IngestPending(cmd.Context())
				fmt.Fprint(cmd.OutOrStdout(), renderIngestStats(stats))
				return err
			})
		},
	}
	cmd.Flags().Int("download-workers", 0, "Concurrent image downloads")
	bindFlag(ctx.v, cmd, app.KeyIngestWorkers, "download-workers")
	return cmd
}

func renderIngestStats(s ingest.Stats) string {
	itoa := strconv.Itoa
	return renderStats([][2]string{
		{"Batches", itoa(s.Batches)},
		{"Batches pending", itoa(s.BatchesPending)},
		{"Batches failed", itoa(s.BatchesFailed)},
		{"Pages", itoa(s.Pages)},
		{"Companies saved", strconv.FormatInt(s.CompaniesSaved, 10)},
		{"Pages with images", itoa(s.PagesWithImages)},
		{"Images planned", itoa(s.ImagesPlanned)},
		{"Images skipped", itoa(s.ImagesSkipped)},
		{"Images uploaded", itoa(s.ImagesUploaded)},
		{"Images failed", itoa(s.ImagesFailed)},
	})
}
