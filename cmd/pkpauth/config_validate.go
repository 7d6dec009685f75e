package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/layer-3/pkpauth/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration file",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", redCross, cfgFile)
			return err
		}

		t := newTable(cmd.OutOrStdout(), table.Row{"Setting", "Value"})
		t.AppendRows([]table.Row{
			{"relay", cfg.Relay.URL},
			{"relay polls", fmt.Sprintf("%d every %s", cfg.Relay.MaxPolls, cfg.Relay.PollInterval)},
			{"nodes", len(cfg.Nodes.URLs)},
			{"local signer", cfg.Nodes.LocalKey != ""},
			{"session ttl", cfg.Session.TTL},
			{"redis", cfg.Redis.URL != ""},
			{"webauthn rp", cfg.Providers.WebAuthn.RPID},
			{"http", cfg.Server.HTTPAddr},
		})
		t.Render()

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", greenCheck, cfgFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
}
