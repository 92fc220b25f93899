package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sadhana/recital/internal/content"
)

var importCmd = &cobra.Command{
	Use:     "import <library.yml> <library.db>",
	Short:   "Copy a YAML library into a SQLite database",
	Long:    paragraph(fmt.Sprintf("\n%s every record of a YAML library into a SQLite database, replacing records with the same type and id.", keyword("Copy"))),
	Example: paragraph("recital import library.yml library.db"),
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := content.OpenFile(expandPath(args[0]))
		if err != nil {
			return fmt.Errorf("unable to read library: %w", err)
		}
		records, err := src.List(cmd.Context())
		if err != nil {
			return err
		}

		db, err := content.OpenSQL(expandPath(args[1]))
		if err != nil {
			return fmt.Errorf("unable to open database: %w", err)
		}
		defer db.Close() //nolint:errcheck

		if err := db.Import(cmd.Context(), records); err != nil {
			return fmt.Errorf("unable to import: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records into %s\n", len(records), args[1])
		return nil
	},
}
