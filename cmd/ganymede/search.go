package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
)

var searchCmd = &cobra.Command{
	Use:   "search <substring>",
	Short: "Search credentials by name or description",
	Long: `Find credentials whose name or description contains the given
substring, case-insensitively. Read-only and lock-free.

Examples:
  ganymede search database
  ganymede search "legacy" --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	doc, err := a.store.Load()
	if err != nil {
		return err
	}

	creds := doc.List(vault.Filter{Query: args[0]})
	if len(creds) == 0 && outputFormat != string(cli.FormatJSON) {
		fmt.Printf("No credentials match %q\n", args[0])
		return nil
	}
	return f.FormatTo(os.Stdout, newListing(creds))
}
