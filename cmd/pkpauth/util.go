package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/layer-3/pkpauth/core"
)

var (
	greenCheck = color.GreenString("✔")
	redCross   = color.RedString("✘")
)

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

// readInput reads a file, or stdin when path is "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// addAuthMethodFlags registers the flags describing a single auth method
func addAuthMethodFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "", "Auth method type (eth_wallet, webauthn, discord, google_jwt, stytch_otp)")
	cmd.Flags().String("token", "", "Access token of the auth method")
	cmd.Flags().String("token-file", "", "Read the access token from a file, - for stdin")
	_ = cmd.MarkFlagRequired("type")
}

func authMethodFromFlags(cmd *cobra.Command) (core.AuthMethod, error) {
	name, _ := cmd.Flags().GetString("type")
	kind, err := core.ParseAuthMethodType(name)
	if err != nil {
		return core.AuthMethod{}, err
	}

	token, _ := cmd.Flags().GetString("token")
	if file, _ := cmd.Flags().GetString("token-file"); file != "" {
		raw, err := readInput(cmd, file)
		if err != nil {
			return core.AuthMethod{}, fmt.Errorf("reading token: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return core.AuthMethod{}, errors.New("one of --token or --token-file is required")
	}

	return core.AuthMethod{Type: kind, AccessToken: token}, nil
}

func printPKPs(w io.Writer, pkps []core.PKP) {
	t := newTable(w, table.Row{"Token ID", "Eth Address", "Public Key"})
	for _, p := range pkps {
		t.AppendRow(table.Row{color.New(color.Bold).Sprint(p.TokenID), p.EthAddress, p.PublicKey})
	}
	t.Render()
}
