package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/studydata/pkg/extraction"
	"github.com/synaptica-ai/studydata/pkg/terminology"
)

func codelistsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codelists [csv-file]",
		Short: "Lists the codelists available to definitions",
		Long: `Without arguments lists the catalog codelists. Given a CSV file, loads the
codes from --column and prints the resulting codelist, which is how new
codelists are checked before being added to a catalog.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				column, _ := cmd.Flags().GetString("column")
				cl, err := terminology.LoadCSV(args[0], terminology.SystemSNOMEDCT, column)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s (%s): %d codes\n", cl.Name, cl.System, cl.Len())
				for _, code := range cl.Codes() {
					fmt.Fprintln(out, code)
				}
				return nil
			}

			infos := extraction.NewService(e.catalog).Codelists()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSYSTEM\tCODES\tDESCRIPTION")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, info.System, strings.Join(info.Codes, ","), info.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "print codelists as JSON")
	cmd.Flags().String("column", "code", "CSV column holding the codes")
	return cmd
}
