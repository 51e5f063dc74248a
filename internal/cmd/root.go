package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/config"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/telemetry"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "iamgate",
	Short: "Pre-merge risk gate for IAM infrastructure changes",
	Long: `iamgate reviews a Terraform plan that touches IAM before it is merged.

It verifies the policy bundle is approved, summarizes the plan, lints the
policy and trust documents, evaluates policy-as-code rules, measures blast
radius, checks live roles in spoke accounts for drift and scores the change.
An optional model-backed reviewer may arbitrate the final verdict, which is
always green, amber or red.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// state shared by subcommands after setup
var (
	appCfg          *config.Config
	logger          *log.Logger
	shutdownTracing func(context.Context) error
)

// ExecuteContext runs the root command with ctx, which subcommands use for
// cancellation. Buffered spans are flushed whether or not the command failed.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	flushTracing(ctx)
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $"+config.PathEnv+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or text")
}

func setup(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		path = os.Getenv(config.PathEnv)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	appCfg = cfg

	logger = log.New(cfg.Log.LoggerConfig())
	log.SetDefault(logger)

	tcfg := cfg.Telemetry
	if tcfg.ServiceVersion == "" || tcfg.ServiceVersion == "dev" {
		tcfg.ServiceVersion = version.Version
	}
	shutdownTracing, err = telemetry.InitProvider(cmd.Context(), tcfg)
	if err != nil {
		logger.WithError(err).Warn("tracing disabled")
		shutdownTracing = nil
	}
	return nil
}

func flushTracing(ctx context.Context) {
	if shutdownTracing == nil {
		return
	}
	if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
		log.OrDefault(logger).WithError(err).Warn("flush traces")
	}
	shutdownTracing = nil
}
