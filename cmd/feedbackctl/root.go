package main

import (
	"fmt"
	"os"

	"feedback-go/internal/app"
	cfgpkg "feedback-go/internal/config"
	"feedback-go/internal/logging"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
	owner   string

	// Loaded configuration
	cfg *cfgpkg.Config
)

var rootCmd = &cobra.Command{
	Use:   "feedbackctl",
	Short: "Inspect feedback sheets offline: name groups, columns, analytics",
	Long: `feedbackctl runs the feedback analytics engine against a local .csv/.xlsx
file or a Google Sheets URL and prints the results as tables.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		color.Red("✗ Error: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.feedback/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&owner, "user", "anonymous", "overlay owner applied to analytics")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c, _ = cfgpkg.Load("")
	}
	cfg = c
}

// newApp builds the engine. Logs are quiet unless --debug is set.
func newApp() (*app.App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration unavailable")
	}
	logger := zap.NewNop().Sugar()
	if debug {
		l, err := logging.New("debug", "console")
		if err != nil {
			return nil, err
		}
		logger = l
	}
	return app.New(cfg, nil, logger)
}
