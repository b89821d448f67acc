package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/regionocr/pkg/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Prints the configuration after merging defaults, the config file,
REGIONOCR_* environment variables and flags.`,
	RunE: runConfig,
}

var logrotateCmd = &cobra.Command{
	Use:   "logrotate",
	Short: "Print a logrotate(8) stanza for the configured log directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := cfg.Log.Dir
		if dir == "" {
			dir = "/var/log/regionocr"
		}
		fmt.Fprint(cmd.OutOrStdout(), logging.GenerateLogrotateConfig(dir, "regionocr"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(logrotateCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
