package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/studydata/pkg/extraction"
)

func validateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [definition.yaml]",
		Short: "Checks a dataset definition without evaluating it",
		Long: `Parses and type checks the definition, printing its hash and columns.
Without a file the study dataset is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var definition string
			if len(args) == 1 {
				content, err := os.ReadFile(filepath.Clean(args[0]))
				if err != nil {
					return err
				}
				definition = string(content)
				if strings.TrimSpace(definition) == "" {
					return fmt.Errorf("%s is empty", args[0])
				}
			}

			result := extraction.NewService(e.catalog).Validate(definition)
			if !result.Valid {
				return errors.New(result.Message)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", result.Message)
			fmt.Fprintf(out, "hash: %s\n", result.DefinitionHash)
			fmt.Fprintf(out, "columns: %s\n", strings.Join(result.Columns, ", "))
			return nil
		},
	}
}
