package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/regionocr/internal/config"
	"github.com/psantana5/regionocr/pkg/logging"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "regionocr-server",
	Short: "Region OCR and HWPX export job server",
	Long: `regionocr-server accepts page images, stores question regions drawn on them,
runs the region OCR pipeline and packages the results as HWPX archives.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("data-root", "", "directory holding job data (default runtime/jobs)")
	rootCmd.PersistentFlags().String("store", "", "job store: file, memory, sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "sqlite path or postgres connection string")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	v.BindPFlag("data.root", rootCmd.PersistentFlags().Lookup("data-root"))
	v.BindPFlag("store.type", rootCmd.PersistentFlags().Lookup("store"))
	v.BindPFlag("store.dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig merges defaults, the config file, REGIONOCR_* variables and flags
func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

func newLogger(cfg *config.Config, sub string) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.Log.Dir == "" {
		return logging.NewLogger(level, cfg.Log.JSON), nil
	}
	return logging.NewFileLogger(cfg.Log.Dir, "regionocr", sub, level, cfg.Log.JSON)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
