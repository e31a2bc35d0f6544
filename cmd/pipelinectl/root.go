package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/config"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/logging"
)

// devSigningKey lets the CLI start without JWT_SIGNING_KEY. Only the local
// command authorizes anything with it.
const devSigningKey = "pipelinectl-dev-key"

var global struct {
	Env      string
	Backend  string
	LogLevel string
}

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Inspect and run the request dispatch pipeline",
	Long: `pipelinectl reads the employees table, peeks at outcomes on the failure
queue and can run gateway, dispatcher and consumer in a single process.

Settings come from the same environment variables as the deployed
functions; flags override the environment.`,
	SilenceUsage: true,
	Example: `  # Read one record
  pipelinectl records get 1234 alice

  # Query the age/designation index
  pipelinectl records by-index 30 engineer

  # Look at failed outcomes without consuming them
  pipelinectl --env=prod failures peek --max=10

  # Run everything in memory on :8080
  pipelinectl local`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&global.Env, "env", "", "environment name used for resource names (overrides APP_ENV)")
	rootCmd.PersistentFlags().StringVar(&global.Backend, "backend", "", "queue backend: sqs, redis or memory (overrides QUEUE_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&global.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
}

// loadConfig reads the environment, applies global flags and then overrides.
func loadConfig(overrides map[string]string) (config.Config, error) {
	environ := environMap(os.Environ())
	if environ["JWT_SIGNING_KEY"] == "" {
		environ["JWT_SIGNING_KEY"] = devSigningKey
	}
	if global.Env != "" {
		environ["APP_ENV"] = global.Env
	}
	if global.Backend != "" {
		environ["QUEUE_BACKEND"] = global.Backend
	}
	if global.LogLevel != "" {
		environ["LOG_LEVEL"] = global.LogLevel
	}
	for k, v := range overrides {
		environ[k] = v
	}
	return config.LoadFrom(environ)
}

func environMap(kvs []string) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, true)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
