package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wealthmeshd",
		Short:         "WealthMesh session orchestrator",
		Long:          "wealthmeshd hosts durable multi-turn advisory sessions: it routes client messages through a supervisor/specialist role graph, persists every interaction, and compacts long-lived sessions through checkpoints.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	v := viper.New()
	v.SetConfigName("wealthmesh")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.wealthmesh")
	v.SetEnvPrefix("WEALTHMESH")
	v.AutomaticEnv()

	rootCmd.AddCommand(newServeCmd(v))
	return rootCmd
}
