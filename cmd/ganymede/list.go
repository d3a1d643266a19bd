package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
)

var listFlags struct {
	service string
	tag     string
}

// credentialListing is the list/search result, rendered as a table or JSON.
type credentialListing struct {
	Credentials []credentialRow `json:"credentials"`
	Total       int             `json:"total"`
}

type credentialRow struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	KeyPolicy string   `json:"key_policy"`
	Services  []string `json:"services,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func (l *credentialListing) TableHeader() []string {
	return []string{"NAME", "STATUS", "KEY POLICY", "SERVICES", "TAGS", "CREATED"}
}

func (l *credentialListing) TableRows() [][]string {
	rows := make([][]string, 0, len(l.Credentials))
	for _, c := range l.Credentials {
		rows = append(rows, []string{
			c.Name,
			c.Status,
			c.KeyPolicy,
			joinOrDash(c.Services),
			joinOrDash(c.Tags),
			c.CreatedAt,
		})
	}
	return rows
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

func newListing(creds []vault.Credential) *credentialListing {
	listing := &credentialListing{
		Credentials: make([]credentialRow, 0, len(creds)),
		Total:       len(creds),
	}
	for _, c := range creds {
		listing.Credentials = append(listing.Credentials, credentialRow{
			Name:      c.Name,
			Status:    string(c.Status),
			KeyPolicy: string(c.KeyPolicy),
			Services:  c.Services,
			Tags:      c.Tags,
			CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return listing
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials",
	Long: `List credential metadata, sorted by name. Read-only and lock-free;
secret material is never printed.

Examples:
  # All credentials
  ganymede list

  # Credentials bound to one service
  ganymede list --service webapp

  # Credentials carrying a tag, as JSON
  ganymede list --tag external --output json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listFlags.service, "service", "", "only credentials bound to this service")
	listCmd.Flags().StringVar(&listFlags.tag, "tag", "", "only credentials carrying this tag")
}

func runList(cmd *cobra.Command, args []string) error {
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

	creds := doc.List(vault.Filter{
		Service: vault.NormalizeServiceName(listFlags.service),
		Tag:     listFlags.tag,
	})
	if len(creds) == 0 && outputFormat != string(cli.FormatJSON) {
		fmt.Println("No credentials found")
		return nil
	}
	return f.FormatTo(os.Stdout, newListing(creds))
}
