package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/companysync-backend/internal/app"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(app.NewViper(), nil)
}

func newRootCommandWith(v *viper.Viper, factory appFactory) *cobra.Command {
	var configFlag string

	ctx := newCommandContext(v, &configFlag)
	if factory != nil {
		ctx.newApp = factory
	}

	rootCmd := &cobra.Command{
		Use:           "companysync",
		Short:         "Reconcile scraped company media into the company catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.HasParent() {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML, TOML or JSON)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.PersistentFlags().String("log-mode", "", "Log mode: development or production")
	_ = v.BindPFlag(app.KeyMetricsAddr, rootCmd.PersistentFlags().Lookup("metrics-addr"))
	_ = v.BindPFlag(app.KeyLogMode, rootCmd.PersistentFlags().Lookup("log-mode"))

	rootCmd.AddCommand(newPipelineCommand(ctx))
	rootCmd.AddCommand(newClassifyCommand(ctx))
	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newBackfillCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))

	return rootCmd
}
