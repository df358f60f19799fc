package cmd

import (
	"context"
	"strings"

	"github.com/Iron-Ham/txguard/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "txguard",
	Short: "Snapshot-backed optimistic transactions over files",
	Long: `txguard guards edits to a set of files with a volume snapshot.

A transaction snapshots the volume, fingerprints the files it will touch and,
at commit, re-fingerprints them. If any file changed behind the transaction's
back the whole volume is rolled back to the snapshot.

The harness command runs many overlapping transactions against one shared
file and reports how many conflicts were detected and how many updates were
lost.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which is passed down to
// snapshot invocations and wrapped commands.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/txguard/config.yaml)")
}

func initConfig() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/txguard")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TXGUARD")
	// Replace dots with underscores for nested keys in env vars
	// e.g., TXGUARD_SNAPSHOT_BACKEND for snapshot.backend
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
