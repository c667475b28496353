package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "simplecms",
	Short: "Schema-driven content management service",
	Long: `simplecms serves content types declared in YAML and the items stored
under them over a JSON API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (environment variables override it)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file when one is given, otherwise the
// environment.
func loadConfig(opts ...config.Option) (*config.ServerConfig, error) {
	source := config.WithEnv()
	if configFile != "" {
		source = config.WithConfigFile(configFile)
	}
	return config.Load(append([]config.Option{source}, opts...)...)
}

func newLogger(environment string) *slog.Logger {
	if environment == "development" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}
