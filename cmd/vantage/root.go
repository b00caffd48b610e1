package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vantagesearch/vantage/internal/config"
	"github.com/vantagesearch/vantage/internal/logging"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "vantage",
	Short:         "ABR business register ingest and search service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "version", "help", "completion":
			return nil
		}
		loaded, err := config.Load(resolveConfigPath())
		if err != nil {
			return err
		}
		cfg = loaded
		logging.Init(logging.Config{
			Level:      cfg.Log.Level,
			JSONOutput: cfg.Log.JSON,
			Output:     os.Stderr,
		})
		return nil
	},
}

// resolveConfigPath prefers the flag, then a vantage.yaml in the working
// directory, then no file at all (defaults + environment).
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat("vantage.yaml"); err == nil {
		return "vantage.yaml"
	}
	return ""
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default vantage.yaml if present)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}
