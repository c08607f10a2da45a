// Command brhist keeps the local history of Brazilian fixed-income market
// data up to date.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rickgao/brmarket-history/internal/config"
	"github.com/rickgao/brmarket-history/internal/version"
)

var (
	configPath string
	envPath    string
	logLevel   string

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "brhist",
	Short: "Daily updater for Brazilian fixed-income market history",
	Long: `brhist fetches the latest DI1 futures, ANBIMA government bond prices,
the projected NTN-B VNA and the BCB secondary market trades, merges them
into the local parquet history and optionally mirrors them into Postgres.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q", logLevel)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return config.LoadDotEnv(envPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "brhist "+version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/brhist.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "path to .env file (ignored when missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(targetDateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded",
		"config", configPath,
		"instance_id", cfg.Instance.ID,
		"data_dir", cfg.Storage.DataDir,
	)
	return cfg, nil
}

// splitNames parses a comma separated dataset list.
func splitNames(values []string) []string {
	var out []string
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
