package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/heimdex/smartcut/internal/config"
	"github.com/heimdex/smartcut/internal/logging"
)

// commandContext loads configuration once per invocation.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		if c.configFlag != nil {
			if path := strings.TrimSpace(*c.configFlag); path != "" {
				os.Setenv(config.EnvConfigFile, path)
			}
		}
		c.config, c.configErr = config.New()
	})
	return c.config, c.configErr
}

// logger writes to stderr so command output on stdout stays clean.
func (c *commandContext) logger() *slog.Logger {
	level := config.DefaultLogLevel
	if cfg, err := c.ensureConfig(); err == nil {
		level = cfg.LogLevel()
	}
	return logging.NewLoggerTo(os.Stderr, level)
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "smartcut",
		Short:         "Trim recordings down to the time ranges worth keeping",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newSegmentsCommand(ctx))
	rootCmd.AddCommand(newPreviewCommand(ctx))

	return rootCmd
}
