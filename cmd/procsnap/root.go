package main

import (
	"github.com/spf13/cobra"

	"github.com/spin-stack/procsnap/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "procsnap",
	Short: "Point-in-time snapshots of live processes",
	Long: `procsnap freezes a running process, dumps its control block and memory
map into text files and lets it run again. The daemon accepts requests on a
write-only control fifo; the other commands trigger, run or inspect snapshots.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the configuration file (default $"+config.ConfigEnvVar+" or "+config.DefaultConfigPath+")")

	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig honors --config before the environment and default locations.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Get()
}

// reloadConfig bypasses the cached configuration.
func reloadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}
