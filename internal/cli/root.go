package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/metagen/internal/config"
	"github.com/harun/metagen/internal/logger"
	"github.com/harun/metagen/internal/tracing"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "metagen",
	Short: "metagen - dataset metadata generation with a tool-calling agent",
	Long: `metagen generates dataset metadata with an LLM agent that calls tools
served over JSON-RPC, and maintains a vector index of the dataset documents
for retrieval questions.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.metagen/metagen.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// environment is the state every command builds at startup.
type environment struct {
	cfg    config.Config
	log    *logger.Logger
	traced bool
}

// setup loads the configuration once and builds the logger. An explicit
// --log-level wins over the configured level.
func setup(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		if err := config.NewValidator().ValidateLogLevel(logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Secrets:   []string{cfg.LLM.APIKey, cfg.RAG.PGURI},
		Out:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	env := &environment{cfg: cfg, log: log}
	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			log.Warn().Err(err).Msg("Tracing disabled")
		} else {
			env.traced = true
		}
	}

	log.Debug().Str("config", cfg.String()).Msg("Configuration loaded")
	return env, nil
}

// Close flushes tracing and closes the log file
func (e *environment) Close() {
	if e.traced {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			e.log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
	_ = e.log.Close()
}
