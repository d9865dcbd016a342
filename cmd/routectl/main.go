package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"payment-routing-service/internal/config"
)

var Version = "dev"

type globalOptions struct {
	configDir   string
	environment string
	verbose     bool
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "routectl",
		Short:         "Operate the payment routing configuration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", envOr("CONFIG_DIR", "config"), "Directory holding routing.<environment>.yaml")
	rootCmd.PersistentFlags().StringVar(&opts.environment, "env", envOr("ENVIRONMENT", "development"), "Deployment environment")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log configuration warnings")

	rootCmd.AddCommand(validateCmd(opts))
	rootCmd.AddCommand(simulateCmd(opts))
	rootCmd.AddCommand(feeCmd())
	rootCmd.AddCommand(backupCmd(opts))

	return rootCmd
}

// load builds the configuration the service would see
func (o *globalOptions) load() (*config.Manager, *config.YAMLStore) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)
	if o.verbose {
		logger.SetLevel(logrus.InfoLevel)
	}

	store := config.NewYAMLStore(o.configDir, o.environment)
	return config.NewManager(store, config.OSEnv, logger), store
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
