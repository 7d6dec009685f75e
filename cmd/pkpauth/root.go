package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/layer-3/pkpauth/config"
	pkplog "github.com/layer-3/pkpauth/internal/log"
)

// global flags
var (
	cfgFile  string
	logLevel string
	pretty   bool
)

var logger = zerolog.Nop()

var rootCmd = &cobra.Command{
	Use:   "pkpauth",
	Short: "Authenticate identities and derive PKP session signatures",
	Long: `pkpauth turns wallet signatures, OAuth tokens, passkeys and OTP sessions
into auth methods, mints and looks up PKPs through a relay, and derives
per-node session signatures that can be validated offline.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = pkplog.NewWithWriter(os.Stderr, logLevel, pretty)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "pkpauth.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Human readable log output")
}

// loadConfig reads the config file. Log flags left at their defaults yield to the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level, usePretty := logLevel, pretty
	if !cmd.Flags().Changed("log-level") {
		level = cfg.Logging.Level
	}
	if !cmd.Flags().Changed("pretty") {
		usePretty = cfg.Logging.Pretty
	}
	logger = pkplog.NewWithWriter(os.Stderr, level, usePretty)
	return cfg, nil
}
