package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/layer-3/pkpauth"
)

var authMethodIDCmd = &cobra.Command{
	Use:   "auth-method-id",
	Short: "Print the relay identifier of an auth method",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := authMethodFromFlags(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		svc, err := pkpauth.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		id, err := svc.AuthMethodID(cmd.Context(), m)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authMethodIDCmd)
	addAuthMethodFlags(authMethodIDCmd)
}
