// Package commands implements the assistant CLI.
package commands

import (
	"context"
	"fmt"
	"os"

	"parts-assistant/cmd/assistant/ui"
	"parts-assistant/internal/app"
	"parts-assistant/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Parts availability and manual assistant",
	Long: `Answers questions about the availability of tools and parts in the
catalog, and questions about the operating manual.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Init(noColor)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Observability.LogLevel = "debug"
	}
	return cfg, nil
}

// cliLogger logs to the console, quietly unless verbose is set.
func cliLogger(cfg *config.Config) zerolog.Logger {
	c := *cfg
	c.Observability.LogFormat = "console"
	if !verbose {
		c.Observability.LogLevel = "warn"
	}
	return app.NewLogger(&c)
}

// redisForCache connects to Redis only when the embedding cache lives there.
func redisForCache(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Cache.Driver != "redis" {
		return nil, nil
	}
	return app.ConnectRedis(ctx, cfg)
}
