package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "airwatchd",
	Short: "Airspace monitoring core",
	Long: `airwatchd ingests telemetry, assesses threat, and fans out alerts
to subscribed dashboards and operator tooling.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (env vars always apply on top)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedAdminCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
