package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/service"
)

var errInvalidSessionSigs = errors.New("session signatures are invalid")

var validateCmd = &cobra.Command{
	Use:   "validate <session-sigs.json|->",
	Short: "Validate session signatures offline",
	Long: `Validate checks the structure, signatures, capability expirations and
cross-node consistency of a session signature map. No node or relay is contacted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return fmt.Errorf("reading session signatures: %w", err)
		}

		var sigs core.SessionSigs
		if err := json.Unmarshal(raw, &sigs); err != nil {
			return fmt.Errorf("decoding session signatures: %w", err)
		}

		res := service.ValidateSessionSigs(sigs)
		printValidation(cmd, sigs, res)
		if !res.Valid {
			return errInvalidSessionSigs
		}
		return nil
	},
}

func printValidation(cmd *cobra.Command, sigs core.SessionSigs, res core.ValidationResult) {
	nodes := sigs.Nodes()
	sort.Strings(nodes)

	t := newTable(cmd.OutOrStdout(), table.Row{"", "Node", "Problems"})
	for _, node := range nodes {
		var problems []string
		for _, e := range res.Errors {
			if strings.HasPrefix(e, "["+node+"] ") {
				problems = append(problems, strings.TrimPrefix(e, "["+node+"] "))
			}
		}
		mark := greenCheck
		if len(problems) > 0 {
			mark = redCross
		}
		t.AppendRow(table.Row{mark, color.New(color.Bold).Sprint(node), strings.Join(problems, "\n")})
	}
	t.Render()

	if res.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "%s session signatures are valid\n", greenCheck)
		return
	}
	// errors that are not tied to a node, e.g. an empty map
	for _, e := range res.Errors {
		if !strings.HasPrefix(e, "[") {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", redCross, e)
		}
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
