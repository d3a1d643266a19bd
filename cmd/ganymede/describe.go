package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/vault"
)

// credentialDetail is the describe result, rendered as a field table or JSON.
type credentialDetail struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	KeyPolicy   string   `json:"key_policy"`
	BlobRef     string   `json:"blob_ref"`
	PrevBlobRef string   `json:"prev_blob_ref,omitempty"`
	CreatedAt   string   `json:"created_at"`
	RotatedAt   string   `json:"rotated_at,omitempty"`
	Services    []string `json:"services,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (d *credentialDetail) TableHeader() []string { return nil }

func (d *credentialDetail) TableRows() [][]string {
	rows := [][]string{
		{"Name:", d.Name},
		{"Status:", d.Status},
		{"Key policy:", d.KeyPolicy},
		{"Blob:", d.BlobRef},
	}
	if d.PrevBlobRef != "" {
		rows = append(rows, []string{"Previous blob:", d.PrevBlobRef})
	}
	rows = append(rows, []string{"Created:", d.CreatedAt})
	if d.RotatedAt != "" {
		rows = append(rows, []string{"Rotated:", d.RotatedAt})
	}
	rows = append(rows, []string{"Services:", joinOrDash(d.Services)})
	rows = append(rows, []string{"Tags:", joinOrDash(d.Tags)})
	if d.Description != "" {
		rows = append(rows, []string{"Description:", d.Description})
	}
	return rows
}

var describeCmd = &cobra.Command{
	Use:   "describe <name>",
	Short: "Show a credential's metadata",
	Long: `Show one credential's full metadata: status, key policy, blob
references, timestamps, bound services, and tags. Read-only and lock-free;
secret material is never printed.

Examples:
  ganymede describe db_password
  ganymede describe db_password --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	name := args[0]

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

	cred := doc.FindByName(name)
	if cred == nil {
		return vault.NewNotFound(name)
	}

	detail := &credentialDetail{
		Name:        cred.Name,
		Description: cred.Description,
		Status:      string(cred.Status),
		KeyPolicy:   string(cred.KeyPolicy),
		BlobRef:     cred.BlobRef,
		PrevBlobRef: cred.PrevBlobRef,
		CreatedAt:   cred.CreatedAt.UTC().Format(time.RFC3339),
		Services:    cred.Services,
		Tags:        cred.Tags,
	}
	if cred.RotatedAt != nil {
		detail.RotatedAt = cred.RotatedAt.UTC().Format(time.RFC3339)
	}
	return f.FormatTo(os.Stdout, detail)
}
