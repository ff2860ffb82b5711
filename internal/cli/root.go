package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tacrodose/pkengine/pkg/config"
	"github.com/tacrodose/pkengine/pkg/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pkengine",
		Short: "Bayesian tacrolimus dose estimation",
		Long: `pkengine fits individual pharmacokinetic parameters to measured tacrolimus
levels with a MAP Bayesian pattern search and recommends the next dose.

It runs as a service (HTTP and gRPC) or processes a single case file.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file (defaults are used when empty)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newEstimateCmd(opts))
	cmd.AddCommand(newPredictCmd(opts))
	return cmd
}

// Execute runs the command line
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the configuration and installs the default logger
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
		if err := config.ValidateConfig(cfg); err != nil {
			return nil, err
		}
	}
	logger.SetDefault(logger.NewText(cfg.LogLevel, cmd.ErrOrStderr()))
	return cfg, nil
}
