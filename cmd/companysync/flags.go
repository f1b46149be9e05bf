package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// bindFlag ties a command flag to a config key so an explicit flag wins over
// environment and config file.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if f := cmd.Flags().Lookup(flag); f != nil {
		_ = v.BindPFlag(key, f)
	}
}
