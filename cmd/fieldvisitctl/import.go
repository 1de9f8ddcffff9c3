package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var templatePath string

	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import clients and schedule rows from an XLSX file",
		Args: func(cmd *cobra.Command, args []string) error {
			if templatePath != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			if templatePath != "" {
				data, err := a.Imports.Template()
				if err != nil {
					return err
				}
				return os.WriteFile(templatePath, data, 0o644)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			report, err := a.Imports.ImportXLSX(cmd.Context(), f)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&templatePath, "template", "", "Write the empty import template to this path instead of importing")
	return cmd
}
