// Package cli implements gymctl, the operator tool for inspecting plans and
// entitlements and for previewing how passages will be voiced.
package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dukerupert/writinggym/internal/database"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath string
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for gymctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gymctl",
		Short: "Operate the writing gym",
		Long:  "Inspect plans and entitlements, grant plans by hand, and preview dialogue voicing.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "writinggym.db", "path to the SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewPlansCommand(opts))
	cmd.AddCommand(NewEntitlementsCommand(opts))
	cmd.AddCommand(NewGrantCommand(opts))
	cmd.AddCommand(NewDialogueCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) openDB() (*sql.DB, error) {
	db, err := database.Open(o.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.DBPath, err)
	}
	return db, nil
}

// writeJSON prints v indented when the json format is selected and reports
// whether it did.
func (o *RootOptions) writeJSON(w io.Writer, v any) (bool, error) {
	if o.Format != "json" {
		return false, nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}
