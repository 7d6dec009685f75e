package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/layer-3/pkpauth"
	"github.com/layer-3/pkpauth/core"
)

var pkpsCmd = &cobra.Command{
	Use:   "pkps",
	Short: "Mint and look up PKPs through the relay",
}

var pkpsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "List the PKPs bound to an auth method",
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

		pkps, err := svc.FetchPKPs(cmd.Context(), m)
		if err != nil {
			return err
		}
		if len(pkps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no PKPs bound to this auth method")
			return nil
		}
		printPKPs(cmd.OutOrStdout(), pkps)
		return nil
	},
}

var pkpsMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a PKP bound to an auth method and wait for it",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := authMethodFromFlags(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		rawScopes, _ := cmd.Flags().GetIntSlice("scope")
		scopes := make([]core.AuthMethodScope, 0, len(rawScopes))
		for _, s := range rawScopes {
			scopes = append(scopes, core.AuthMethodScope(s))
		}

		svc, err := pkpauth.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		logger.Info().Str("type", m.Type.String()).Msg("minting pkp, this polls the relay until the mint lands")
		pkp, err := svc.MintPKP(cmd.Context(), []core.AuthMethod{m}, core.MintOptions{
			Scopes: [][]core.AuthMethodScope{scopes},
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s pkp minted\n", greenCheck)
		printPKPs(cmd.OutOrStdout(), []core.PKP{*pkp})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pkpsCmd)
	pkpsCmd.AddCommand(pkpsFetchCmd, pkpsMintCmd)

	addAuthMethodFlags(pkpsFetchCmd)
	addAuthMethodFlags(pkpsMintCmd)
	pkpsMintCmd.Flags().IntSlice("scope", []int{int(core.ScopeSignAnything)}, "Permission scopes granted to the auth method")
}
