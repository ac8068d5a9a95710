package main

import (
	"fmt"
	"os"

	"github.com/cuemby/rolesweep/pkg/config"
	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rolesweep",
	Short: "rolesweep - expire time-limited community roles",
	Long: `rolesweep removes community roles whose time-limited grants have
expired, notifies the affected members and revokes privileges that were
delegated under an expired premium grant.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"rolesweep version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("community", "", "Community id (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(grantsCmd)
	rootCmd.AddCommand(notificationsCmd)
}

// loadConfig reads the config file and env, then applies flag overrides
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("community"); v != "" {
		cfg.CommunityID = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = log.Level(v)
	}

	log.Init(log.Config{Level: cfg.Log.Level, JSONOutput: cfg.Log.JSON, Output: cmd.ErrOrStderr()})
	return cfg, nil
}
