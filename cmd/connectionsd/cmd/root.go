// Package cmd holds the connectionsd command tree.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-connections/adapters/gozerolog"
	"github.com/goliatone/go-connections/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const appName = "connectionsd"

type rootFlags struct {
	configFile string
	envFile    string
	logLevel   string
	logPretty  bool
}

var (
	flags     rootFlags
	appLogger *gozerolog.Logger
	logs      glog.LoggerProvider
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "connectionsd links users to Facebook Pages and WhatsApp Business numbers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if appLogger != nil {
			appLogger.Error("command failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "connectionsd:", err)
		}
		os.Exit(1)
	}
}

func init() {
	// Assigned here rather than in the literal: loadEnvFile reads rootCmd,
	// which would otherwise form an initialization cycle.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		appLogger = gozerolog.New(gozerolog.Options{Level: flags.logLevel, Pretty: flags.logPretty})
		logs = gozerolog.NewProvider(appLogger)
		return loadEnvFile(flags.envFile)
	}

	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML config file; environment variables override it")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flags.logPretty, "log-pretty", false, "human readable console logs")

	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newGenerateSecretCmd())
}

// loadEnvFile populates the process environment from a dotenv file. A missing
// default file is ignored; an explicitly named one must exist.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) && !rootCmd.PersistentFlags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig layers defaults, the optional YAML file and the environment.
func loadConfig(ctx context.Context) (core.Config, error) {
	loaders := core.ChainLoader{}
	if path := strings.TrimSpace(flags.configFile); path != "" {
		loaders = append(loaders, core.YAMLFileLoader{Path: path, Required: true})
	}
	loaders = append(loaders, core.EnvLoader{})
	return core.NewCfgxConfigProvider(loaders).Load(ctx, core.DefaultConfig())
}
